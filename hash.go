/*
File Name:  hash.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

BucketHasher: pure deterministic mapping from a secret key and an address
(plus, for the new table, its source) to a bucket index and a position
inside that bucket. Every hash here is a keyed blake3 hash of a
domain-separated, length-prefixed concatenation of byte strings — the same
way the rest of this codebase uses blake3 for every hash (protocol/Hash.go,
warehouse/Store.go in the teacher repo), just keyed instead of unkeyed.
*/

package addrbook

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

const (
	triedBucketsPerGroup = 8   // BPG
	triedBucketCount     = 256 // TRIED_BUCKETS
	newBucketsPerSrcGrp  = 64  // BPSG
	newBucketCount       = 1024
	bucketSize           = 64 // BUCKET_SIZE
	maxNewRefs           = 8  // MAX_NEW_REFS
)

// keyedHash computes a domain-separated 64-bit hash of the given
// length-prefixed segments under the 32-byte secret key.
func keyedHash(key [32]byte, segments ...[]byte) uint64 {
	h := blake3.New(8, key[:])
	var lenBuf [4]byte
	for _, seg := range segments {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(seg)))
		h.Write(lenBuf[:])
		h.Write(seg)
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func i32Bytes(v int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

// bucketHasher computes bucket placement under a fixed secret key and a
// caller-supplied network-grouping function.
type bucketHasher struct {
	key      [32]byte
	netGroup NetGroupFunc
}

// triedBucket returns which of the TRIED_BUCKETS buckets addr belongs to
// when moved into the tried table.
func (h bucketHasher) triedBucket(addr Address) int {
	hash1 := keyedHash(h.key, addr.Key()) % triedBucketsPerGroup
	hash2 := keyedHash(h.key, h.netGroup(addr.NA()), u64Bytes(hash1))
	return int(hash2 % triedBucketCount)
}

// newBucket returns which of the NEW_BUCKETS buckets addr belongs to, for
// entries originating from the given source.
func (h bucketHasher) newBucket(addr Address, source NetAddr) int {
	hash1 := keyedHash(h.key, h.netGroup(addr.NA()), h.netGroup(source)) % newBucketsPerSrcGrp
	hash2 := keyedHash(h.key, h.netGroup(source), u64Bytes(hash1))
	return int(hash2 % newBucketCount)
}

// bucketPos returns the position within a bucket (new or tried) that addr
// should occupy.
func (h bucketHasher) bucketPos(isNew bool, bucket int, addr Address) int {
	tag := byte('K')
	if isNew {
		tag = 'N'
	}
	hash1 := keyedHash(h.key, []byte{tag}, i32Bytes(bucket), addr.Key())
	return int(hash1 % bucketSize)
}

// rebucket recomputes bucket/bucketPos for an entry given its current
// in-tried state, address and source.
func (h bucketHasher) rebucket(inTried bool, addr Address, source NetAddr) (bucket, pos int) {
	if inTried {
		bucket = h.triedBucket(addr)
		pos = h.bucketPos(false, bucket, addr)
	} else {
		bucket = h.newBucket(addr, source)
		pos = h.bucketPos(true, bucket, addr)
	}
	return
}
