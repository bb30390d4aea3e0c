package accounts

import (
	"testing"

	"github.com/nimbusledger/corechain/address"
	"github.com/nimbusledger/corechain/primitives"
)

// This fixture reconstructs the tree:
//
//	      R1
//	      |
//	      B1
//	    / |  \
//	   T1 B2 T2
//	     / \
//	    T3 T4
//
// ported from original_source/accounts/src/accounts_proof.rs's it_can_verify
// test.
func buildFixture(t *testing.T) (t1, t2, t3, t4, b1, b2, r1 Node) {
	t.Helper()

	an1, err := address.ParseNibbles("0011111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	an2, err := address.ParseNibbles("0033333333333333333333333333333333333333")
	if err != nil {
		t.Fatal(err)
	}
	an3, err := address.ParseNibbles("0020000000000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	an4, err := address.ParseNibbles("0022222222222222222222222222222222222222")
	if err != nil {
		t.Fatal(err)
	}

	t1 = NewTerminal(an1, primitives.BasicAccount{Balance: 25})
	t2 = NewTerminal(an2, primitives.BasicAccount{Balance: 1})
	t3 = NewTerminal(an3, primitives.BasicAccount{Balance: 1322})
	t4 = NewTerminal(an4, primitives.BasicAccount{Balance: 93})

	b2 = NewBranch("002")
	h3, h4 := t3.Hash(), t4.Hash()
	b2 = b2.WithChild(0, &h3).WithChild(2, &h4)

	b1 = NewBranch("00")
	h1, hb2, h2 := t1.Hash(), b2.Hash(), t2.Hash()
	b1 = b1.WithChild(1, &h1).WithChild(2, &hb2).WithChild(3, &h2)

	r1 = NewBranch("")
	hb1 := b1.Hash()
	r1 = r1.WithChild(0, &hb1)

	return
}

func TestAccountsProofFullTree(t *testing.T) {
	t1, t2, t3, t4, b1, b2, r1 := buildFixture(t)
	root := r1.Hash()

	proof := Proof{Nodes: []Node{t1, t3, t4, b2, t2, b1, r1}}
	if err := proof.Verify(root); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	addr1, _ := address.FromHex("0011111111111111111111111111111111111111")
	addr2, _ := address.FromHex("0033333333333333333333333333333333333333")
	addr3, _ := address.FromHex("0020000000000000000000000000000000000000")
	addr4, _ := address.FromHex("0022222222222222222222222222222222222222")

	if acct, ok := proof.GetAccount(addr1); !ok || acct.(primitives.BasicAccount).Balance != 25 {
		t.Fatal("expected account1 with balance 25")
	}
	if acct, ok := proof.GetAccount(addr2); !ok || acct.(primitives.BasicAccount).Balance != 1 {
		t.Fatal("expected account2 with balance 1")
	}
	if acct, ok := proof.GetAccount(addr3); !ok || acct.(primitives.BasicAccount).Balance != 1322 {
		t.Fatal("expected account3 with balance 1322")
	}
	if acct, ok := proof.GetAccount(addr4); !ok || acct.(primitives.BasicAccount).Balance != 93 {
		t.Fatal("expected account4 with balance 93")
	}
}

func TestAccountsProofTwoLeaves(t *testing.T) {
	t1, _, t3, _, b1, b2, r1 := buildFixture(t)
	root := r1.Hash()

	proof := Proof{Nodes: []Node{t1, t3, b2, b1, r1}}
	if err := proof.Verify(root); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	addr1, _ := address.FromHex("0011111111111111111111111111111111111111")
	addr2, _ := address.FromHex("0033333333333333333333333333333333333333")
	addr3, _ := address.FromHex("0020000000000000000000000000000000000000")
	addr4, _ := address.FromHex("0022222222222222222222222222222222222222")

	if _, ok := proof.GetAccount(addr1); !ok {
		t.Fatal("expected account1 present")
	}
	if _, ok := proof.GetAccount(addr3); !ok {
		t.Fatal("expected account3 present")
	}
	if _, ok := proof.GetAccount(addr2); ok {
		t.Fatal("expected account2 absent")
	}
	if _, ok := proof.GetAccount(addr4); ok {
		t.Fatal("expected account4 absent")
	}
}

func TestAccountsProofSingleLeaf(t *testing.T) {
	_, _, _, t4, b1, b2, r1 := buildFixture(t)
	root := r1.Hash()

	proof := Proof{Nodes: []Node{t4, b2, b1, r1}}
	if err := proof.Verify(root); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	addr4, _ := address.FromHex("0022222222222222222222222222222222222222")
	if _, ok := proof.GetAccount(addr4); !ok {
		t.Fatal("expected account4 present")
	}
}

func TestAccountsProofRejectsTamperedHash(t *testing.T) {
	t1, t2, t3, t4, b1, b2, r1 := buildFixture(t)
	root := r1.Hash()

	tampered := t1
	tampered.Account = primitives.BasicAccount{Balance: 999}

	proof := Proof{Nodes: []Node{tampered, t3, t4, b2, t2, b1, r1}}
	if err := proof.Verify(root); err == nil {
		t.Fatal("expected tampered proof to fail verification")
	}
}
