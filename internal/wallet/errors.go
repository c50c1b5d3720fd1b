package wallet

// Code is the stable machine identifier of a verification failure class.
type Code string

const (
	CodeInvalidFormat     Code = "INVALID_FORMAT"
	CodeNotFoundOrExpired Code = "NOT_FOUND_OR_EXPIRED"
	CodeInvoiceMismatch   Code = "INVOICE_MISMATCH"
	CodeSignatureInvalid  Code = "SIGNATURE_INVALID"
	CodePayerMismatch     Code = "PAYER_MISMATCH"
	CodeAlreadyRedeemed   Code = "ALREADY_REDEEMED"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
)

// VerifyError is a terminal verification failure. Every one of them surfaces
// to the client as 402 with Reason, never 5xx, since they represent protocol
// non-compliance by the client, not server malfunction.
type VerifyError struct {
	Code   Code
	Reason string
	// InvoiceID is filled where resolvable from the proof itself; it never
	// leaks stored contents.
	InvoiceID string
}

func (e *VerifyError) Error() string { return e.Reason }
