package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dev0179/x402-data-utils/internal/invoice"
)

// newRecord builds an issued record expiring ttl from now.
func newRecord(ttl time.Duration) invoice.Record {
	now := time.Now().UTC()
	expires := now.Add(ttl)
	inv := invoice.Invoice{
		InvoiceID: uuid.NewString(),
		Path:      "/validate/csv",
		Price:     "0.01",
		PayTo:     "0x1111111111111111111111111111111111111111",
		Nonce:     uuid.NewString(),
		IssuedAt:  now.Format("2006-01-02T15:04:05Z"),
		ExpiresAt: expires.Format("2006-01-02T15:04:05Z"),
		Asset:     invoice.DefaultAsset,
		Chain:     invoice.DefaultChain,
		Domain:    invoice.Domain,
	}
	return invoice.Record{Invoice: inv, ExpiresAt: expires.Unix()}
}

const testPayer = "0x2222222222222222222222222222222222222222"

// Shared property tests: both backends must pass these identically.

func testCreateGetRoundTrip(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(time.Minute)

	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := st.Get(ctx, rec.Invoice.InvoiceID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Invoice != rec.Invoice {
		t.Errorf("stored invoice differs:\n got %+v\nwant %+v", got.Invoice, rec.Invoice)
	}
	if got.Redeemed {
		t.Error("fresh record must not be redeemed")
	}
}

func testGetUnknown(t *testing.T, st Store) {
	t.Helper()
	if _, err := st.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFoundOrExpired) {
		t.Errorf("Get unknown: got %v, want ErrNotFoundOrExpired", err)
	}
}

func testRedeemOnce(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(time.Minute)
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	receipt, err := st.Redeem(ctx, rec.Invoice.InvoiceID, testPayer)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if receipt.ReceiptID == "" {
		t.Error("receipt_id must be set")
	}
	if receipt.InvoiceID != rec.Invoice.InvoiceID || receipt.Payer != testPayer {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	if _, err := st.Redeem(ctx, rec.Invoice.InvoiceID, testPayer); !errors.Is(err, ErrAlreadyRedeemed) {
		t.Errorf("second redeem: got %v, want ErrAlreadyRedeemed", err)
	}
}

// An expired record is permanently unredeemable regardless of pruning timing:
// absence reads identically whether pruned or never created.
func testExpiredUnredeemable(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(-time.Minute)
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := st.Get(ctx, rec.Invoice.InvoiceID); !errors.Is(err, ErrNotFoundOrExpired) {
		t.Errorf("Get expired: got %v, want ErrNotFoundOrExpired", err)
	}
	if _, err := st.Redeem(ctx, rec.Invoice.InvoiceID, testPayer); !errors.Is(err, ErrNotFoundOrExpired) {
		t.Errorf("Redeem expired: got %v, want ErrNotFoundOrExpired", err)
	}
}

// Under N concurrent redeems of one invoice exactly one succeeds and the rest
// observe ErrAlreadyRedeemed.
func testConcurrentRedeemExactlyOnce(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(time.Minute)
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		replays   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Redeem(ctx, rec.Invoice.InvoiceID, testPayer)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyRedeemed):
				replays++
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes: got %d, want exactly 1", successes)
	}
	if replays != n-1 {
		t.Errorf("replays: got %d, want %d", replays, n-1)
	}
}

// Distinct invoices redeem independently.
func testRedeemIsolation(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	a := newRecord(time.Minute)
	b := newRecord(time.Minute)
	if err := st.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := st.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	if _, err := st.Redeem(ctx, a.Invoice.InvoiceID, testPayer); err != nil {
		t.Fatalf("redeem a: %v", err)
	}
	if _, err := st.Redeem(ctx, b.Invoice.InvoiceID, testPayer); err != nil {
		t.Fatalf("redeem b after a: %v", err)
	}
}
