// Package shard provides partition key generation for the natural-key index.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// NameIndexPK computes the sharded partition key for a natural-key index
// entry. With numShards=1, all entries of a kind go to shard "00". With
// numShards>1, entries are distributed across shards based on the key
// value's hash, so one hot kind doesn't pin a single index partition.
// A given (kind, value) pair always maps to exactly one shard, so lookups
// stay single-query.
func NameIndexPK(kind, value string, numShards int) string {
	if numShards <= 1 {
		return fmt.Sprintf("%s#00", kind)
	}
	h := fnv.New32a()
	h.Write([]byte(value))
	shard := h.Sum32() % uint32(numShards)
	return fmt.Sprintf("%s#%02x", kind, shard)
}

// NameDigest computes a fixed-width digest of a natural-key value, used as
// the index sort key so arbitrarily long names stay within key size limits.
func NameDigest(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
