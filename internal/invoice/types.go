// Package invoice defines the value types of the wallet gate: the single-use
// Invoice challenge, the client-submitted Proof, the Receipt produced by a
// successful redemption, and the Record the store mutates.
package invoice

import "fmt"

const (
	// Domain separates canonical messages of this deployment from any other
	// signer context. It is the first segment of every signed message.
	Domain = "x402-local-wallet"

	DefaultAsset = "local-usdc"
	DefaultChain = "local"
)

// Invoice is a single-use payment challenge bound to one priced path.
// Immutable once issued: verification compares the client's echoed copy
// field-for-field against the stored original.
type Invoice struct {
	InvoiceID string `json:"invoice_id"`
	Path      string `json:"path"`
	Price     string `json:"price"`
	PayTo     string `json:"pay_to"`
	Nonce     string `json:"nonce"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
	Asset     string `json:"asset"`
	Chain     string `json:"chain"`
	Domain    string `json:"domain"`
}

// CanonicalMessage returns the deterministic, field-order-fixed string a payer
// signs. This exact string is the signed payload, never a JSON re-serialization
// of the invoice, so verification does not depend on key ordering.
func (inv Invoice) CanonicalMessage() string {
	return fmt.Sprintf("%s|invoice_id=%s|path=%s|price=%s|pay_to=%s|nonce=%s|expires_at=%s",
		Domain, inv.InvoiceID, inv.Path, inv.Price, inv.PayTo, inv.Nonce, inv.ExpiresAt)
}

// Proof is the payer-submitted envelope carried in the X-X402-Proof header:
// the echoed invoice, the claimed payer address, and a hex EIP-191 signature
// over the invoice's canonical message.
type Proof struct {
	Invoice   Invoice `json:"invoice"`
	Payer     string  `json:"payer"`
	Signature string  `json:"signature"`
}

// Receipt is evidence of one successful, non-repeatable redemption.
type Receipt struct {
	ReceiptID  string `json:"receipt_id"`
	InvoiceID  string `json:"invoice_id"`
	Payer      string `json:"payer"`
	RedeemedAt int64  `json:"redeemed_at"`
}

// Record wraps an Invoice with its store lifecycle state. It is the only
// mutable entity in the system; only the store's redeem operation writes it.
type Record struct {
	Invoice Invoice `json:"invoice"`
	// ExpiresAt is the unix expiry of the invoice. Checked on every read, so
	// pruning of expired records is a space optimization, never a correctness
	// requirement.
	ExpiresAt int64  `json:"expires_at"`
	Redeemed  bool   `json:"redeemed"`
	ReceiptID string `json:"receipt_id,omitempty"`
}

// Expired reports whether the record is past its TTL at the given unix time.
func (r Record) Expired(nowUnix int64) bool {
	return nowUnix > r.ExpiresAt
}
