package atom

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/bits-and-blooms/bitset"
)

// bloomBits is the size of the per-commit Bloom filter backing store.
// It is sized generously relative to a typical commit's file count so
// the false-positive rate stays low enough that the Oracle's cursor
// scan (the expensive fallback on a hit) rarely triggers needlessly.
const bloomBits = 2048

// numHashes is the number of independent hash functions used per
// insertion/test, derived from the standard k ≈ (m/n) * ln(2)
// approximation for a few hundred elements over bloomBits.
const numHashes = 4

var seeds = [numHashes]uint32{0x9e3779b9, 0x85ebca6b, 0xc2b2ae35, 0x27d4eb2f}

// Bloom is a per-commit Bloom filter over interned Atoms, used by the
// Parent-Link Oracle as a cheap negative-membership test before paying
// for the cursor scan (spec §4.4).
type Bloom struct {
	bits *bitset.BitSet
}

// NewBloom returns an empty Bloom filter.
func NewBloom() *Bloom {
	return &Bloom{bits: bitset.New(bloomBits)}
}

// Add inserts a into the filter.
func (b *Bloom) Add(a *Atom) {
	for _, h := range hashes(a) {
		b.bits.Set(h)
	}
}

// MayContain reports whether a might have been added to the filter.
// A false return is definitive: a was never added. A true return is
// not: it may be a false positive.
func (b *Bloom) MayContain(a *Atom) bool {
	for _, h := range hashes(a) {
		if !b.bits.Test(h) {
			return false
		}
	}
	return true
}

// Union merges other's membership into b in place, matching the
// aggregation the Oracle performs when building a commit's combined
// filter from its FileRevisions.
func (b *Bloom) Union(other *Bloom) {
	b.bits.InPlaceUnion(other.bits)
}

func hashes(a *Atom) [numHashes]uint {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(a.id))

	var out [numHashes]uint
	for i, seed := range seeds {
		h := fnv.New32a()
		var sb [4]byte
		binary.LittleEndian.PutUint32(sb[:], seed)
		h.Write(sb[:])
		h.Write(buf[:])
		h.Write([]byte(a.name))
		out[i] = uint(h.Sum32()) % bloomBits
	}
	return out
}
