package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dev0179/x402-data-utils/internal/invoice"
	"github.com/dev0179/x402-data-utils/internal/store"
)

// Verifier checks client-submitted proofs against stored invoices and
// triggers atomic redemption. It is stateless; all mutable state lives in the
// store.
type Verifier struct {
	store store.Store
}

func NewVerifier(st store.Store) *Verifier {
	return &Verifier{store: st}
}

// ParseProofHeader decodes an X-X402-Proof header value:
// base64(JSON({invoice, payer, signature})), with a plain-JSON fallback for
// clients that skip the base64 wrapping.
func ParseProofHeader(raw string) (*invoice.Proof, error) {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if p, err := decodeProof(decoded); err == nil {
			return p, nil
		}
	}
	return decodeProof([]byte(raw))
}

// decodeProof is strict: unknown fields anywhere in the envelope (including
// ones injected into the echoed invoice) are rejected rather than silently
// dropped, so the later equality check never compares a lossy decode.
func decodeProof(b []byte) (*invoice.Proof, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p invoice.Proof
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Verify runs the ordered checks; the first failure short-circuits with its
// own code. Success returns the receipt and the recovered payer address.
func (v *Verifier) Verify(ctx context.Context, proof *invoice.Proof) (*invoice.Receipt, string, *VerifyError) {
	// 1. Structural validity.
	if proof == nil || proof.Payer == "" || proof.Signature == "" || proof.Invoice.InvoiceID == "" {
		return nil, "", &VerifyError{Code: CodeInvalidFormat, Reason: "invalid proof format"}
	}
	invoiceID := proof.Invoice.InvoiceID

	// 2. Existence and freshness.
	rec, err := v.store.Get(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFoundOrExpired) {
			return nil, "", &VerifyError{Code: CodeNotFoundOrExpired, Reason: "invoice not found or expired", InvoiceID: invoiceID}
		}
		return nil, "", &VerifyError{Code: CodeStoreUnavailable, Reason: "invoice store unavailable", InvoiceID: invoiceID}
	}

	// 3. Tamper check: the echoed invoice must match the stored one
	// field-for-field. A signature over a mutated invoice is still
	// cryptographically valid over the original message, so equality is
	// checked before the signature.
	if proof.Invoice != rec.Invoice {
		return nil, "", &VerifyError{Code: CodeInvoiceMismatch, Reason: "invoice mismatch", InvoiceID: invoiceID}
	}

	// 4. Signature recovery over the canonical message of the STORED invoice.
	recovered, err := RecoverHex(rec.Invoice.CanonicalMessage(), proof.Signature)
	if err != nil {
		return nil, "", &VerifyError{Code: CodeSignatureInvalid, Reason: "signature recover failed", InvoiceID: invoiceID}
	}

	// 5. Identity: recovered address must match the claimed payer.
	if !strings.EqualFold(recovered.Hex(), proof.Payer) {
		return nil, "", &VerifyError{Code: CodePayerMismatch, Reason: "payer mismatch", InvoiceID: invoiceID}
	}

	// 6. Atomic redemption. Expiry and the redeemed flag are re-checked at
	// commit time; those failures propagate verbatim.
	receipt, err := v.store.Redeem(ctx, invoiceID, recovered.Hex())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyRedeemed):
			return nil, "", &VerifyError{Code: CodeAlreadyRedeemed, Reason: "invoice already redeemed", InvoiceID: invoiceID}
		case errors.Is(err, store.ErrNotFoundOrExpired):
			return nil, "", &VerifyError{Code: CodeNotFoundOrExpired, Reason: "invoice not found or expired", InvoiceID: invoiceID}
		default:
			return nil, "", &VerifyError{Code: CodeStoreUnavailable, Reason: "invoice store unavailable", InvoiceID: invoiceID}
		}
	}

	return receipt, recovered.Hex(), nil
}
