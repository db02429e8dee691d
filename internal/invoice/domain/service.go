package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/fapiaolink/pkg/db/pagination"
)

// ListRequest is the read surface over the cache for a tenant's
// partition.
type ListRequest struct {
	TenantID     string
	ErpInvoiceID string
	CustomerName string
	Status       string
	FapiaoType   string
	Submitter    string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Page         int
	Limit        int
}

type ListResponse struct {
	Invoices     []InvoiceRecord         `json:"invoices"`
	PageInfo     pagination.PageInfo     `json:"page_info"`
	StatusTotals map[InvoiceStatus]int64 `json:"status_totals"`
}

type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, tenantID string, erpInvoiceID int64) (*InvoiceRecord, error)
}

var (
	ErrNotFound      = errors.New("invoice_not_found")
	ErrAlreadyCached = errors.New("invoice_already_cached")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidStatus = errors.New("invalid_status_filter")
)
