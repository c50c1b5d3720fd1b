package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dev0179/x402-data-utils/internal/invoice"
)

const (
	invoiceKeyPrefix = "invoice:"
	receiptKeyPrefix = "receipt:"

	// maxRedeemAttempts bounds the optimistic-concurrency retry loop so
	// contention on one invoice cannot livelock a worker.
	maxRedeemAttempts = 5
	redeemBackoffBase = 10 * time.Millisecond
)

// RedisStore is the distributed backend. Records are JSON strings under
// invoice:<id> with a key TTL matching the invoice expiry, so Redis prunes
// expired records on its own; expiry is still re-checked on every read.
// Redeem uses WATCH + MULTI/EXEC: the conditional write only lands if the
// record is unchanged since the read, which gives the same exactly-once
// guarantee as MemoryStore without a distributed lock.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func invoiceKey(invoiceID string) string { return invoiceKeyPrefix + invoiceID }

// keyTTL returns the remaining lifetime of a record, clamped to ≥1s so a
// nearly expired record still makes it into Redis (reads reject it anyway).
func keyTTL(expiresAtUnix int64) time.Duration {
	ttl := time.Until(time.Unix(expiresAtUnix, 0))
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisStore) Create(ctx context.Context, rec invoice.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.rdb.Set(ctx, invoiceKey(rec.Invoice.InvoiceID), payload, keyTTL(rec.ExpiresAt)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, invoiceID string) (*invoice.Record, error) {
	raw, err := s.rdb.Get(ctx, invoiceKey(invoiceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFoundOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var rec invoice.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", ErrUnavailable, err)
	}
	if rec.Expired(time.Now().Unix()) {
		return nil, ErrNotFoundOrExpired
	}
	return &rec, nil
}

func (s *RedisStore) Redeem(ctx context.Context, invoiceID, payer string) (*invoice.Receipt, error) {
	key := invoiceKey(invoiceID)

	for attempt := 0; attempt < maxRedeemAttempts; attempt++ {
		var receipt invoice.Receipt

		txn := func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return ErrNotFoundOrExpired
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}

			var rec invoice.Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return fmt.Errorf("%w: corrupt record: %v", ErrUnavailable, err)
			}
			now := time.Now()
			if rec.Expired(now.Unix()) {
				return ErrNotFoundOrExpired
			}
			if rec.Redeemed {
				return ErrAlreadyRedeemed
			}

			receipt = invoice.Receipt{
				ReceiptID:  uuid.NewString(),
				InvoiceID:  invoiceID,
				Payer:      payer,
				RedeemedAt: now.Unix(),
			}
			rec.Redeemed = true
			rec.ReceiptID = receipt.ReceiptID

			recPayload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			receiptPayload, err := json.Marshal(receipt)
			if err != nil {
				return fmt.Errorf("marshal receipt: %w", err)
			}

			// Record update and receipt creation commit as one unit; EXEC
			// fails if the watched key changed since the read.
			ttl := keyTTL(rec.ExpiresAt)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, recPayload, ttl)
				pipe.Set(ctx, receiptKeyPrefix+receipt.ReceiptID, receiptPayload, ttl)
				return nil
			})
			return err
		}

		err := s.rdb.Watch(ctx, txn, key)
		switch {
		case err == nil:
			return &receipt, nil
		case errors.Is(err, redis.TxFailedErr):
			// Lost the race; re-read and re-validate after a short backoff.
			time.Sleep(redeemBackoffBase + time.Duration(rand.Int63n(int64(redeemBackoffBase)*4)))
		case errors.Is(err, ErrNotFoundOrExpired), errors.Is(err, ErrAlreadyRedeemed), errors.Is(err, ErrUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: redeem contention on %s", ErrUnavailable, invoiceID)
}
