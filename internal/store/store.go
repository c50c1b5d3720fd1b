// Package store persists invoice lifecycle state. Two backends implement one
// contract: an in-process map for single-instance deployments and a Redis
// backend with optimistic concurrency for distributed ones. Redeem is the sole
// mutating entry point; no caller ever sees a raw mutable collection.
package store

import (
	"context"
	"errors"

	"github.com/dev0179/x402-data-utils/internal/invoice"
)

var (
	// ErrNotFoundOrExpired covers both absence and TTL elapse: the two are
	// deliberately indistinguishable to callers.
	ErrNotFoundOrExpired = errors.New("invoice not found or expired")

	// ErrAlreadyRedeemed is the losing side of a redemption race (or a
	// straight replay). The invoice stays terminal.
	ErrAlreadyRedeemed = errors.New("invoice already redeemed")

	// ErrUnavailable signals a backend failure (or retry exhaustion under
	// contention), not client protocol non-compliance.
	ErrUnavailable = errors.New("invoice store unavailable")
)

// Store is the invoice lifecycle contract.
//
// Redemption is linearizable per invoice_id: under N concurrent Redeem calls
// for the same invoice exactly one succeeds and the rest observe
// ErrAlreadyRedeemed. Distinct invoice_ids redeem fully in parallel.
type Store interface {
	// Create persists a freshly issued record. Records are never overwritten:
	// invoice_ids are unique per issuance.
	Create(ctx context.Context, rec invoice.Record) error

	// Get returns the record for invoice_id, or ErrNotFoundOrExpired if it is
	// absent or past its TTL. Expiry is enforced on every read.
	Get(ctx context.Context, invoiceID string) (*invoice.Record, error)

	// Redeem atomically transitions ISSUED → REDEEMED and creates the receipt
	// as one indivisible step. Expiry and the redeemed flag are re-checked at
	// commit time.
	Redeem(ctx context.Context, invoiceID, payer string) (*invoice.Receipt, error)
}
