// Package ledger provides typed HTTP access to the external ERP that
// owns invoice records.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
)

// RawLine is one invoice line as returned by the ledger, with its tax
// sub-record already expanded.
type RawLine struct {
	Description   string          `json:"description"`
	CommodityCode string          `json:"commodityCode"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	ExtendedPrice decimal.Decimal `json:"extendedPrice"`
	TaxPercent    decimal.Decimal `json:"taxPercent"`
}

// RawInvoice is a ledger invoice header with expanded lines.
type RawInvoice struct {
	ID             int64     `json:"id"`
	Description    string    `json:"description"`
	CustomerName   string    `json:"customerName"`
	CustomerNumber string    `json:"customerNumber"`
	ResaleID       string    `json:"resaleId"`
	Comment        string    `json:"comment"`
	BillToAddress  string    `json:"billToAddress"`
	Posted         bool      `json:"posted"`
	StatusCode     int       `json:"statusCode"`
	FapiaoType     string    `json:"fapiaoType"`
	OrderNumber    string    `json:"orderNumber"`
	PONumber       string    `json:"poNumber"`
	Submitter      string    `json:"submitter"`
	CreatedAt      time.Time `json:"createdAt"`
	// ExceptionPayload carries a JSON blob with the outcome of a prior
	// submission attempt, written back by this bridge via PatchStatus.
	ExceptionPayload string    `json:"exceptionPayload"`
	Lines            []RawLine `json:"lines"`
}

// StatusPatch is the set of mutable fields the bridge writes back.
type StatusPatch struct {
	StatusCode        *int    `json:"statusCode,omitempty"`
	SerialNo          *string `json:"serialNo,omitempty"`
	ProviderInvoiceID *string `json:"providerInvoiceId,omitempty"`
	HasPdf            *bool   `json:"hasPdf,omitempty"`
	Comment           *string `json:"comment,omitempty"`
	ExceptionPayload  *string `json:"exceptionPayload,omitempty"`
}

type Service interface {
	// QueryDelta returns invoices created at or after since, newest
	// first, bounded to pageSize, with lines expanded.
	QueryDelta(ctx context.Context, settings *tenantdir.ConnectionSettings, since time.Time, pageSize int) ([]RawInvoice, error)
	// GetByID fetches a single invoice with lines.
	GetByID(ctx context.Context, settings *tenantdir.ConnectionSettings, id int64) (*RawInvoice, error)
	// PatchStatus updates the bridge-owned status fields on a ledger invoice.
	PatchStatus(ctx context.Context, settings *tenantdir.ConnectionSettings, id int64, patch StatusPatch) error
}

var ErrNotFound = errors.New("ledger_invoice_not_found")
