package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dev0179/x402-data-utils/internal/invoice"
)

// MemoryStore is the single-process backend. One mutex makes the whole
// expiry-check, redeemed-check, flag-set, receipt-create sequence a single
// critical section, which is all the linearizability the contract asks for.
type MemoryStore struct {
	mu       sync.Mutex
	invoices map[string]invoice.Record
	receipts map[string]invoice.Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices: make(map[string]invoice.Record),
		receipts: make(map[string]invoice.Receipt),
	}
}

// prune drops expired records. Space optimization only: Get and Redeem check
// expiry themselves, so an unpruned expired record reads identically to an
// absent one. Caller must hold mu.
func (s *MemoryStore) prune(nowUnix int64) {
	for id, rec := range s.invoices {
		if rec.Expired(nowUnix) {
			delete(s.invoices, id)
		}
	}
}

func (s *MemoryStore) Create(_ context.Context, rec invoice.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(time.Now().Unix())
	s.invoices[rec.Invoice.InvoiceID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, invoiceID string) (*invoice.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.invoices[invoiceID]
	if !ok || rec.Expired(time.Now().Unix()) {
		return nil, ErrNotFoundOrExpired
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Redeem(_ context.Context, invoiceID, payer string) (*invoice.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.invoices[invoiceID]
	now := time.Now()
	if !ok || rec.Expired(now.Unix()) {
		return nil, ErrNotFoundOrExpired
	}
	if rec.Redeemed {
		return nil, ErrAlreadyRedeemed
	}

	receipt := invoice.Receipt{
		ReceiptID:  uuid.NewString(),
		InvoiceID:  invoiceID,
		Payer:      payer,
		RedeemedAt: now.Unix(),
	}
	rec.Redeemed = true
	rec.ReceiptID = receipt.ReceiptID
	s.invoices[invoiceID] = rec
	s.receipts[receipt.ReceiptID] = receipt
	return &receipt, nil
}
