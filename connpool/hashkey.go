package connpool

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/aead/siphash"
)

// addrHasher derives ban-list bucket keys from a per-pool random SipHash
// key, so a peer cannot predict which bucket an address lands in and
// target it for a ban-list complexity attack.
type addrHasher struct {
	key [16]byte
}

func newAddrHasher() addrHasher {
	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic("connpool: failed to seed address hash key: " + err.Error())
	}
	return addrHasher{key: key}
}

func (h addrHasher) bucketKey(addr NetAddress) string {
	sum, err := siphash.Sum64(h.key[:], addr.IP)
	if err != nil {
		panic("connpool: siphash: " + err.Error())
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sum)
	return string(buf[:])
}
