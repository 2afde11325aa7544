// Package idempotency detects duplicate order submissions.
//
// A submission's fingerprint is a SHA-256 hash over its identifying fields.
// The hash input uses a canonical rendering of the decimal fields, so
// "100" and "100.00" fingerprint identically. When the caller supplies no
// client order id, a per-submission nonce is mixed in instead, which
// disables dedup for that submission.
//
// Entries are retained for the lifetime of the process; in the memory-only
// deployment that is the replay window the platform guarantees.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arontabacinik/itirp/pkg/types"
)

// Fingerprint computes the stable dedup hash for a submission. The result
// is identical across process invocations for identical input.
func Fingerprint(userID, symbol string, side types.Side, quantity, limitPrice string, clientOrderID string) string {
	if clientOrderID == "" {
		// No client order id means the caller opted out of dedup; a fresh
		// nonce guarantees uniqueness.
		clientOrderID = "nonce:" + uuid.NewString()
	}
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		userID, symbol, string(side), quantity, limitPrice, clientOrderID,
	}, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintOrder computes the fingerprint for an order's identifying
// fields.
func FingerprintOrder(o types.Order) string {
	return Fingerprint(o.UserID, o.Symbol, o.Side, o.Quantity.String(), o.LimitPrice.String(), o.ClientOrderID)
}

// Index maps fingerprints to the order that first claimed them.
type Index struct {
	mu     sync.Mutex
	claims map[string]string // fingerprint → order id
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{claims: make(map[string]string)}
}

// Claim atomically records orderID against the fingerprint. If the
// fingerprint is already claimed, the prior order's id is returned and
// accepted is false.
func (i *Index) Claim(fingerprint, orderID string) (accepted bool, priorOrderID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if prior, ok := i.claims[fingerprint]; ok {
		return false, prior
	}
	i.claims[fingerprint] = orderID
	return true, ""
}

// Release removes a claim, allowing the fingerprint to be reused. Called
// when a claimed submission fails before its order exists.
func (i *Index) Release(fingerprint string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.claims, fingerprint)
}

// Len returns the number of live claims.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.claims)
}
