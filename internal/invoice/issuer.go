package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampLayout matches the issued_at/expires_at wire format (UTC, seconds).
const timestampLayout = "2006-01-02T15:04:05Z"

// RecordWriter persists freshly issued invoices. Satisfied by store.Store;
// decoupled here so the issuer does not depend on a backend.
type RecordWriter interface {
	Create(ctx context.Context, rec Record) error
}

// Issuer builds and persists invoices for priced paths.
type Issuer struct {
	payTo string
	ttl   time.Duration
	store RecordWriter
}

func NewIssuer(payTo string, ttl time.Duration, store RecordWriter) *Issuer {
	return &Issuer{payTo: payTo, ttl: ttl, store: store}
}

// Issue creates an invoice with a fresh invoice_id and nonce, persists it, and
// returns it. The invoice is stored before it is handed to the client, so a
// proof can never reference an invoice the store has not seen.
func (i *Issuer) Issue(ctx context.Context, path, price string) (*Invoice, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(i.ttl)

	inv := Invoice{
		InvoiceID: uuid.NewString(),
		Path:      path,
		Price:     price,
		PayTo:     i.payTo,
		Nonce:     uuid.NewString(),
		IssuedAt:  issuedAt.Format(timestampLayout),
		ExpiresAt: expiresAt.Format(timestampLayout),
		Asset:     DefaultAsset,
		Chain:     DefaultChain,
		Domain:    Domain,
	}

	rec := Record{Invoice: inv, ExpiresAt: expiresAt.Unix()}
	if err := i.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist invoice: %w", err)
	}
	return &inv, nil
}
