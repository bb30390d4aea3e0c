// Package address implements the 20-byte account Address type, its
// nibble-prefix representation used as accounts-trie keys, and the
// human-friendly "NQ.." encoding, per spec.md §3 and §6.
package address

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nimbusledger/corechain/chainhash"
	"github.com/nimbusledger/corechain/chaincrypto"
)

// Size is the number of bytes in an Address.
const Size = 20

// Address is a fixed 20-byte account identifier.
type Address [Size]byte

// FromHash derives an Address from the low 20 bytes of a content hash.
func FromHash(h chainhash.Hash) Address {
	var a Address
	copy(a[:], h[chainhash.Size-Size:])
	return a
}

// FromPublicKey derives an Address from the Blake2b hash of a serialized
// compressed secp256k1 public key.
func FromPublicKey(pub *secp256k1.PublicKey) Address {
	h := chaincrypto.Blake2b256(pub.SerializeCompressed())
	return FromHash(h)
}

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// FromHex parses a 40-character hex string into an Address.
func FromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != Size {
		return a, fmt.Errorf("address: invalid length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Nibbles returns the 40-nibble AddressNibbles encoding of a, suitable for
// use as an accounts-trie key.
func (a Address) Nibbles() Nibbles {
	return Nibbles(a.String())
}

const (
	countryCode = "NQ"
	alphabet    = "0123456789ABCDEFGHJKLMNPQRSTUVXY"
)

// FriendlyError describes why a human-friendly address string failed to
// parse, per spec.md §6/§7.
type FriendlyError struct {
	Reason string
}

func (e *FriendlyError) Error() string { return "friendly address: " + e.Reason }

// ToFriendly renders a in the 36-character "NQ.." user-friendly form,
// grouped into 4-character blocks separated by spaces (44 characters
// total including the 8 separating spaces).
func (a Address) ToFriendly() string {
	base32 := encodeCustomBase32(a[:])
	checkInput := base32 + countryCode + "00"
	check := 98 - ibanCheck(checkInput)
	friendly := countryCode + fmt.Sprintf("%02d", check) + base32

	var b strings.Builder
	b.Grow(len(friendly) + 8)
	for i := 0; i < 9; i++ {
		start := i * 4
		end := start + 4
		if end > len(friendly) {
			end = len(friendly)
		}
		b.WriteString(friendly[start:end])
		if i != 8 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// ParseFriendly parses the 36-character (plus spaces) user-friendly address
// form produced by ToFriendly, verifying its IBAN-style checksum.
func ParseFriendly(friendly string) (Address, error) {
	var a Address
	s := strings.ReplaceAll(friendly, " ", "")

	if len(s) < 2 || strings.ToUpper(s[0:2]) != countryCode {
		return a, &FriendlyError{Reason: "wrong country code"}
	}
	if len(s) != 36 {
		return a, &FriendlyError{Reason: "wrong length"}
	}

	twisted := s[4:] + s[0:4]
	if ibanCheck(twisted) != 1 {
		return a, &FriendlyError{Reason: "invalid checksum"}
	}

	raw, err := decodeCustomBase32(s[4:])
	if err != nil {
		return a, &FriendlyError{Reason: "invalid encoding"}
	}
	if len(raw) != Size {
		return a, &FriendlyError{Reason: "wrong length"}
	}
	copy(a[:], raw)
	return a, nil
}

// ibanCheck implements the mod-97 IBAN checksum algorithm: letters become
// their (code-55) decimal digit pair, digits pass through, and the
// resulting numeric string is reduced modulo 97 in 6-digit chunks to avoid
// unbounded-width integers.
func ibanCheck(s string) uint32 {
	var num strings.Builder
	for _, c := range strings.ToUpper(s) {
		code := uint32(c)
		if code >= '0' && code <= '9' {
			num.WriteRune(c)
		} else {
			num.WriteString(strconv.FormatUint(uint64(code-55), 10))
		}
	}

	digits := num.String()
	tmp := ""
	chunk := 6
	for i := 0; i < len(digits); i += chunk {
		end := i + chunk
		if end > len(digits) {
			end = len(digits)
		}
		combined := tmp + digits[i:end]
		v, _ := strconv.ParseUint(combined, 10, 64)
		tmp = strconv.FormatUint(v%97, 10)
	}
	v, _ := strconv.ParseUint(tmp, 10, 32)
	return uint32(v)
}

// encodeCustomBase32 encodes data using the Nimiq base32 alphabet, which
// omits padding and uses a non-standard symbol set, so the stdlib
// encoding/base32 package (fixed RFC 4648 alphabets only) cannot be reused.
func encodeCustomBase32(data []byte) string {
	var out strings.Builder
	var buf uint32
	var bits int
	for _, b := range data {
		buf = (buf << 8) | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out.WriteByte(alphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		out.WriteByte(alphabet[(buf<<uint(5-bits))&0x1f])
	}
	return out.String()
}

func decodeCustomBase32(s string) ([]byte, error) {
	rev := make(map[byte]uint32, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		rev[alphabet[i]] = uint32(i)
	}

	var out []byte
	var buf uint32
	var bits int
	for i := 0; i < len(s); i++ {
		v, ok := rev[s[i]]
		if !ok {
			return nil, fmt.Errorf("address: invalid base32 character %q", s[i])
		}
		buf = (buf << 5) | v
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte((buf>>uint(bits))&0xff))
		}
	}
	return out, nil
}
