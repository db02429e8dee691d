package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/fapiaolink/pkg/db/pagination"
	"gorm.io/gorm"
)

// ListFilter narrows the cached invoice listing. String filters match
// as substrings; zero values are ignored.
type ListFilter struct {
	ErpInvoiceID string
	CustomerName string
	Status       InvoiceStatus
	FapiaoType   string
	Submitter    string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// Outcome is the terminal result of a submission applied to the cache
// after the ledger has accepted it.
type Outcome struct {
	Status            InvoiceStatus
	ProviderInvoiceID string
	SerialNo          string
	HasPdf            bool
	Comment           string
	RedSerialNo       string
	RawPayload        []byte
	At                time.Time
}

type Repository interface {
	// InsertWithLines stores a record and its lines in one transaction.
	// Returns ErrAlreadyCached when the (partition, erp id) pair exists.
	InsertWithLines(ctx context.Context, db *gorm.DB, record *InvoiceRecord) error
	// Watermark returns the newest erp_created_at stored for a
	// partition, or the zero time when the partition is empty.
	Watermark(ctx context.Context, db *gorm.DB, partitionKey string) (time.Time, error)
	Exists(ctx context.Context, db *gorm.DB, partitionKey string, erpInvoiceID int64) (bool, error)
	FindByErpID(ctx context.Context, db *gorm.DB, partitionKey string, erpInvoiceID int64) (*InvoiceRecord, error)
	List(ctx context.Context, db *gorm.DB, partitionKey string, filter ListFilter, page pagination.Pagination) ([]InvoiceRecord, int64, error)
	// StatusTotals counts cached records per status within a partition,
	// ignoring pagination.
	StatusTotals(ctx context.Context, db *gorm.DB, partitionKey string, filter ListFilter) (map[InvoiceStatus]int64, error)
	// ApplyOutcome updates the bridge-owned fields on a cached record.
	ApplyOutcome(ctx context.Context, db *gorm.DB, partitionKey string, erpInvoiceID int64, outcome Outcome) error
}
