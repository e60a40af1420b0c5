package service

import (
	"bytes"

	"github.com/google/uuid"
)

// orderAccounts returns the two participant ids as a canonical (low, high)
// pair under byte-wise comparison of the raw uuids. Every transfer locks its
// two balance rows in this order regardless of which side is source or
// destination, so no cycle of lock waits can form between concurrent
// transfers. This ordering is the sole deadlock-avoidance mechanism.
func orderAccounts(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}
