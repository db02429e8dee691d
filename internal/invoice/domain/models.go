package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus is the lifecycle state of a cached invoice.
type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "PENDING"
	StatusSubmitted InvoiceStatus = "SUBMITTED"
	StatusError     InvoiceStatus = "ERROR"
	StatusRedNote   InvoiceStatus = "RED_NOTE"
)

// InvoiceRecord is the local copy of a ledger invoice. A record is
// identified inside its partition by the ledger's own invoice id; the
// pair is unique so repeated syncs cannot duplicate it.
type InvoiceRecord struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	PartitionKey string       `gorm:"not null;uniqueIndex:ux_invoice_erp_partition" json:"partition_key"`
	ErpInvoiceID int64        `gorm:"not null;uniqueIndex:ux_invoice_erp_partition" json:"erp_invoice_id"`

	Description    string          `json:"description,omitempty"`
	CustomerName   string          `gorm:"not null;index" json:"customer_name"`
	CustomerNumber string          `json:"customer_number,omitempty"`
	ResaleID       string          `json:"resale_id,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	FapiaoType     string          `gorm:"index" json:"fapiao_type,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(18,4)" json:"amount"`
	Status         InvoiceStatus   `gorm:"not null;index" json:"status"`

	OrderNumber string `json:"order_number,omitempty"`
	PONumber    string `json:"po_number,omitempty"`
	Submitter   string `gorm:"index" json:"submitter,omitempty"`

	ProviderInvoiceID string     `json:"provider_invoice_id,omitempty"`
	SerialNo          string     `json:"serial_no,omitempty"`
	HasPdf            bool       `json:"has_pdf"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	RedSerialNo       string     `json:"red_serial_no,omitempty"`
	RedNotedAt        *time.Time `json:"red_noted_at,omitempty"`

	// LastOutcome holds the raw payload of the most recent submission
	// outcome, kept for operator inspection.
	LastOutcome datatypes.JSON `gorm:"type:jsonb" json:"last_outcome,omitempty"`

	ErpCreatedAt time.Time `gorm:"not null;index" json:"erp_created_at"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Lines []InvoiceLineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

func (InvoiceRecord) TableName() string { return "invoices" }

// InvoiceLineItem is one billing line under a cached invoice.
type InvoiceLineItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`

	Description   string          `json:"description,omitempty"`
	CommodityCode string          `gorm:"not null" json:"commodity_code"`
	Unit          string          `json:"unit,omitempty"`
	Quantity      decimal.Decimal `gorm:"type:numeric(18,4)" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(18,4)" json:"unit_price"`
	ExtendedPrice decimal.Decimal `gorm:"type:numeric(18,4)" json:"extended_price"`
	TaxPercent    decimal.Decimal `gorm:"type:numeric(8,4)" json:"tax_percent"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }
