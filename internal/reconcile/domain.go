// Package reconcile applies provider callback outcomes to the ledger
// and then to the local cache.
package reconcile

import (
	"bytes"
	"encoding/json"
)

// Callback methods that carry an outcome to apply. Everything else the
// provider sends is acknowledged and dropped.
const (
	MethodInvoiceResult = "invoice.result"
	MethodRedNoteResult = "rednote.result"
)

// Envelope is the outer callback frame. Data arrives either as a JSON
// object or as a JSON string wrapping one, depending on the provider's
// mood.
type Envelope struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

// CallbackData is the provider's outcome for one order token.
type CallbackData struct {
	OrderToken        string `json:"orderNo"`
	Status            string `json:"status"`
	SerialNo          string `json:"serialNo"`
	ProviderInvoiceID string `json:"invoiceId"`
	PdfURL            string `json:"pdfUrl"`
	ErrorCode         string `json:"errorCode"`
	ErrorMessage      string `json:"errorMessage"`
}

// EntityResult reports the reconciliation of one ledger invoice. A
// merge callback fans out into one result per member invoice.
type EntityResult struct {
	ErpInvoiceID int64  `json:"erp_invoice_id"`
	Updated      bool   `json:"updated"`
	Error        string `json:"error,omitempty"`
}

// Response is what the callback endpoint returns to the provider.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Results []EntityResult `json:"results,omitempty"`
}

// decodeInner unwraps one level of string-encoding before decoding the
// callback data.
func decodeInner(raw json.RawMessage, out *CallbackData) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return err
		}
		trimmed = []byte(inner)
	}
	return json.Unmarshal(trimmed, out)
}
