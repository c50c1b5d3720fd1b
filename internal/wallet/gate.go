package wallet

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/dev0179/x402-data-utils/internal/invoice"
)

// Decision classifies the gate's verdict on one inbound request.
type Decision int

const (
	// DecisionPass lets the request through untouched: unpriced path or
	// CORS pre-flight.
	DecisionPass Decision = iota
	// DecisionChallenge answers with a freshly issued invoice (402).
	DecisionChallenge
	// DecisionGrant forwards to the downstream handler with a receipt.
	DecisionGrant
	// DecisionDeny answers 402 with a failure reason.
	DecisionDeny
)

// Outcome is the gate's verdict plus whatever the verdict needs: the invoice
// for a challenge, receipt and payer for a grant, the error for a deny.
type Outcome struct {
	Decision Decision
	Price    string
	Invoice  *invoice.Invoice
	Receipt  *invoice.Receipt
	Payer    string
	Err      *VerifyError
}

// GateRequest is the framework-independent view of an inbound request; the
// gate's logic is testable without an HTTP server.
type GateRequest struct {
	Method      string
	Path        string
	ProofHeader string
}

// Gate routes each inbound request to pass-through, invoice issuance, or
// proof verification. Stateless: safe across arbitrary concurrent workers.
type Gate struct {
	prices   map[string]string
	payTo    string
	issuer   *invoice.Issuer
	verifier *Verifier
	log      *zap.Logger
}

func NewGate(prices map[string]string, payTo string, issuer *invoice.Issuer, verifier *Verifier, log *zap.Logger) *Gate {
	return &Gate{prices: prices, payTo: payTo, issuer: issuer, verifier: verifier, log: log}
}

// PayTo returns the configured payee address shown on invoices.
func (g *Gate) PayTo() string { return g.payTo }

// Price returns the configured price for a path, if the path is gated.
func (g *Gate) Price(path string) (string, bool) {
	price, ok := g.prices[path]
	return price, ok
}

func (g *Gate) Evaluate(ctx context.Context, req GateRequest) Outcome {
	if req.Method == http.MethodOptions {
		return Outcome{Decision: DecisionPass}
	}
	price, ok := g.prices[req.Path]
	if !ok {
		return Outcome{Decision: DecisionPass}
	}

	if req.ProofHeader == "" {
		inv, err := g.issuer.Issue(ctx, req.Path, price)
		if err != nil {
			g.log.Error("issue invoice", zap.String("path", req.Path), zap.Error(err))
			return Outcome{
				Decision: DecisionDeny,
				Price:    price,
				Err:      &VerifyError{Code: CodeStoreUnavailable, Reason: "invoice store unavailable"},
			}
		}
		g.log.Info("402 issued",
			zap.String("invoice_id", inv.InvoiceID),
			zap.String("path", req.Path),
			zap.String("price", price),
		)
		return Outcome{Decision: DecisionChallenge, Price: price, Invoice: inv}
	}

	proof, err := ParseProofHeader(req.ProofHeader)
	if err != nil {
		return Outcome{
			Decision: DecisionDeny,
			Price:    price,
			Err:      &VerifyError{Code: CodeInvalidFormat, Reason: "invalid proof format"},
		}
	}

	receipt, payer, verr := g.verifier.Verify(ctx, proof)
	if verr != nil {
		g.log.Warn("proof rejected",
			zap.String("path", req.Path),
			zap.String("invoice_id", verr.InvoiceID),
			zap.String("code", string(verr.Code)),
			zap.String("reason", verr.Reason),
		)
		return Outcome{Decision: DecisionDeny, Price: price, Err: verr}
	}

	g.log.Info("proof verified",
		zap.String("payer", payer),
		zap.String("invoice_id", receipt.InvoiceID),
		zap.String("receipt", receipt.ReceiptID),
	)
	return Outcome{Decision: DecisionGrant, Price: price, Receipt: receipt, Payer: payer}
}
