package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// AccountID is a monotonically assigned account identifier (spec §3
// Account invariant: "account id monotone").
type AccountID uint64

// Hash is a 32-byte content hash, used for block ids, balance ids
// (content-addressed by withdraw condition), and delegate slate ids.
// Mirrors the teacher's consensus.Hash [32]byte (pkg/consensus/types.go).
type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// IsZero reports whether h is the all-zero sentinel id (spec §4.G:
// "Genesis' previous is the zero id").
func (h Hash) IsZero() bool { return h == Hash{} }

// BlockID identifies a block by the hash of its header.
type BlockID = Hash

// BalanceID identifies a balance by the hash of its withdraw
// condition (spec §3 "Balance ... Content-addressed by hash of its
// withdraw condition").
type BalanceID = Hash

// SlateID identifies a delegate slate by the hash of its member set
// (spec §3 "Delegate slate ... Identified by hash of the set").
type SlateID = Hash

// HashBytes returns the SHA-256 digest of b as a Hash.
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// SlateIDOf computes the content id of a delegate slate: the hash of
// its member account ids in ascending order, so the same set always
// hashes to the same id regardless of insertion order.
func SlateIDOf(members []AccountID) SlateID {
	sorted := append([]AccountID(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	buf := make([]byte, 8*len(sorted))
	for i, id := range sorted {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return HashBytes(buf)
}
