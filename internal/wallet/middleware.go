package wallet

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Wire surface of the gate.
const (
	HeaderProof     = "X-X402-Proof"
	HeaderMode      = "X-X402-Mode"
	HeaderPrice     = "X-X402-Price"
	HeaderPayTo     = "X-X402-PayTo"
	HeaderPath      = "X-X402-Path"
	HeaderInvoiceID = "X-X402-InvoiceId"
	HeaderReceipt   = "X-X402-Receipt"
	HeaderPayer     = "X-X402-Payer"

	modeWallet = "wallet"
	howToPay   = "Sign the canonical message and retry with X-X402-Proof"
)

// Middleware adapts the gate onto Gin. Challenge and deny abort with 402;
// grant decorates the downstream response with receipt metadata. Each HTTP
// call is independent; no state is held between the 402 and the retry.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		out := g.Evaluate(c.Request.Context(), GateRequest{
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			ProofHeader: c.GetHeader(HeaderProof),
		})

		switch out.Decision {
		case DecisionChallenge:
			g.writeChallengeHeaders(c, out.Price, out.Invoice.InvoiceID)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":      "payment required",
				"mode":       modeWallet,
				"invoice":    out.Invoice,
				"how_to_pay": howToPay,
			})

		case DecisionDeny:
			g.writeChallengeHeaders(c, out.Price, out.Err.InvoiceID)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":      "payment required",
				"mode":       modeWallet,
				"reason":     out.Err.Reason,
				"invoice_id": out.Err.InvoiceID,
			})

		case DecisionGrant:
			// Headers must land before the downstream handler writes its body.
			c.Header(HeaderReceipt, out.Receipt.ReceiptID)
			c.Header(HeaderPayer, out.Payer)
			c.Header(HeaderPrice, out.Price)
			c.Header(HeaderPath, c.Request.URL.Path)
			c.Header(HeaderPayTo, g.payTo)
			c.Header(HeaderMode, modeWallet)
			c.Next()

		default:
			c.Next()
		}
	}
}

func (g *Gate) writeChallengeHeaders(c *gin.Context, price, invoiceID string) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	c.Header("Access-Control-Allow-Headers", "*")
	c.Header(HeaderMode, modeWallet)
	c.Header(HeaderPrice, price)
	c.Header(HeaderPayTo, g.payTo)
	c.Header(HeaderPath, c.Request.URL.Path)
	c.Header(HeaderInvoiceID, invoiceID)
}
