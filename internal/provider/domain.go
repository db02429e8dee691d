// Package provider submits invoice requests to the external
// e-invoicing service.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Operation selects the provider endpoint behavior.
type Operation string

const (
	OperationInvoice Operation = "invoice"
	OperationMerge   Operation = "merge"
	OperationRedNote Operation = "rednote"
)

// RequestLine is one billing line in the provider's request shape.
// Quantities and prices travel as strings; the tax rate is a fraction
// (e.g. "0.13"), both per the provider contract.
type RequestLine struct {
	Description   string `json:"name"`
	CommodityCode string `json:"commodityCode"`
	Unit          string `json:"unit"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unitPrice"`
	Amount        string `json:"amount"`
	TaxRate       string `json:"taxRate"`
}

// SubmitRequest is an outbound invoice/merge/red-note request.
type SubmitRequest struct {
	Operation    Operation     `json:"operation"`
	OrderToken   string        `json:"orderNo"`
	CustomerName string        `json:"buyerName"`
	ResaleID     string        `json:"buyerTaxNo,omitempty"`
	FapiaoType   string        `json:"invoiceType"`
	Remark       string        `json:"remark,omitempty"`
	CallbackURL  string        `json:"callbackUrl,omitempty"`
	Lines        []RequestLine `json:"items"`
	// RedInfo references the original invoice for red-note requests.
	RedSerialNo string `json:"redSerialNo,omitempty"`
}

// SubmitResult is the provider's synchronous answer. Success here only
// means the request was accepted; the final outcome arrives via the
// asynchronous callback.
type SubmitResult struct {
	Success           bool   `json:"success"`
	ProviderInvoiceID string `json:"invoiceId,omitempty"`
	SerialNo          string `json:"serialNo,omitempty"`
	PdfURL            string `json:"pdfUrl,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

var ErrEmptyLines = errors.New("provider_request_has_no_lines")

// Error carries the provider's own error code and message verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}
