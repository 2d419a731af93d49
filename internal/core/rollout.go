package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// InRollout reports whether attributeValue falls inside the rollout fraction
// for key. threshold is a fraction in [0,1].
//
// The mapping is a cross-SDK contract, not an implementation detail: every
// Kestrel SDK must compute SHA-256(key + ":" + attributeValue), take the
// first 8 bytes as a big-endian unsigned integer, and divide by 2^64. A given
// (key, attributeValue) pair therefore lands on the same side of the
// threshold in every process, on every platform, forever.
func InRollout(key, attributeValue string, threshold float64) bool {
	if threshold >= 1 {
		return true
	}
	if threshold <= 0 {
		return false
	}
	sum := sha256.Sum256([]byte(key + ":" + attributeValue))
	n := binary.BigEndian.Uint64(sum[:8])
	return float64(n)/(1<<64) < threshold
}
