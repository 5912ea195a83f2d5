package hashing

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spaolacci/murmur3"
)

// Hash returns a deterministic 64-bit hash of v, matching the byte-exact
// algorithm the server and every other language client agree on:
// MurmurHash3 x64-128 over the canonical byte form, seed 0, keeping the
// low 64 bits (h1 after finalization). A Null(true) value always hashes
// to 0 without touching murmur3 at all — there's nothing to mix; a
// Null(false) value is rejected by ToBytes.
func Hash(v types.AttributeValue) (uint64, error) {
	if nv, ok := v.(*types.AttributeValueMemberNULL); ok && nv.Value {
		return 0, nil
	}

	b, err := ToBytes(v)
	if err != nil {
		return 0, err
	}

	h1, _ := murmur3.Sum128WithSeed(b, 0)
	return h1, nil
}

// HashOrZero is a convenience wrapper for call sites that have already
// decided a hashing error should fall back to round-robin routing
// rather than propagate — see the AffinityInterceptor degrade policy.
func HashOrZero(v types.AttributeValue) (uint64, bool) {
	h, err := Hash(v)
	if err != nil {
		return 0, false
	}
	return h, true
}
