package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/pkg/db"
	"github.com/smallbiznis/fapiaolink/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWithLines(ctx context.Context, gdb *gorm.DB, record *domain.InvoiceRecord) error {
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines := record.Lines
		record.Lines = nil
		defer func() { record.Lines = lines }()

		if err := tx.Create(record).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].InvoiceID = record.ID
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.Create(&lines).Error
	})
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrAlreadyCached
	}
	return err
}

func (r *repo) Watermark(ctx context.Context, gdb *gorm.DB, partitionKey string) (time.Time, error) {
	var record domain.InvoiceRecord
	err := gdb.WithContext(ctx).
		Select("erp_created_at").
		Where("partition_key = ?", partitionKey).
		Order("erp_created_at desc").
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return record.ErpCreatedAt.UTC(), nil
}

func (r *repo) Exists(ctx context.Context, gdb *gorm.DB, partitionKey string, erpInvoiceID int64) (bool, error) {
	var count int64
	err := gdb.WithContext(ctx).
		Model(&domain.InvoiceRecord{}).
		Where("partition_key = ? AND erp_invoice_id = ?", partitionKey, erpInvoiceID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) FindByErpID(ctx context.Context, gdb *gorm.DB, partitionKey string, erpInvoiceID int64) (*domain.InvoiceRecord, error) {
	var record domain.InvoiceRecord
	err := gdb.WithContext(ctx).
		Preload("Lines").
		Where("partition_key = ? AND erp_invoice_id = ?", partitionKey, erpInvoiceID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, gdb *gorm.DB, partitionKey string, filter domain.ListFilter, page pagination.Pagination) ([]domain.InvoiceRecord, int64, error) {
	page = page.Normalize()

	var total int64
	if err := r.filtered(gdb.WithContext(ctx), partitionKey, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []domain.InvoiceRecord
	err := r.filtered(gdb.WithContext(ctx), partitionKey, filter).
		Order("erp_created_at desc, erp_invoice_id desc").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *repo) StatusTotals(ctx context.Context, gdb *gorm.DB, partitionKey string, filter domain.ListFilter) (map[domain.InvoiceStatus]int64, error) {
	// Status totals ignore the status filter itself so the caller sees
	// the full breakdown alongside a filtered listing.
	unfiltered := filter
	unfiltered.Status = ""

	var rows []struct {
		Status domain.InvoiceStatus
		Total  int64
	}
	err := r.filtered(gdb.WithContext(ctx), partitionKey, unfiltered).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[domain.InvoiceStatus]int64, len(rows))
	for _, row := range rows {
		totals[row.Status] = row.Total
	}
	return totals, nil
}

func (r *repo) ApplyOutcome(ctx context.Context, gdb *gorm.DB, partitionKey string, erpInvoiceID int64, outcome domain.Outcome) error {
	updates := map[string]any{
		"status":     outcome.Status,
		"updated_at": outcome.At,
	}
	if outcome.ProviderInvoiceID != "" {
		updates["provider_invoice_id"] = outcome.ProviderInvoiceID
	}
	if outcome.SerialNo != "" {
		updates["serial_no"] = outcome.SerialNo
	}
	if outcome.HasPdf {
		updates["has_pdf"] = true
	}
	if outcome.Comment != "" {
		updates["comment"] = outcome.Comment
	}
	if outcome.RedSerialNo != "" {
		updates["red_serial_no"] = outcome.RedSerialNo
		updates["red_noted_at"] = outcome.At
	}
	if outcome.Status == domain.StatusSubmitted {
		updates["submitted_at"] = outcome.At
	}
	if len(outcome.RawPayload) > 0 {
		updates["last_outcome"] = outcome.RawPayload
	}

	result := gdb.WithContext(ctx).
		Model(&domain.InvoiceRecord{}).
		Where("partition_key = ? AND erp_invoice_id = ?", partitionKey, erpInvoiceID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) filtered(stmt *gorm.DB, partitionKey string, filter domain.ListFilter) *gorm.DB {
	stmt = stmt.
		Model(&domain.InvoiceRecord{}).
		Where("partition_key = ?", partitionKey)
	if filter.ErpInvoiceID != "" {
		stmt = stmt.Where("CAST(erp_invoice_id AS TEXT) LIKE ?", "%"+filter.ErpInvoiceID+"%")
	}
	if filter.CustomerName != "" {
		stmt = stmt.Where("customer_name LIKE ?", "%"+filter.CustomerName+"%")
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.FapiaoType != "" {
		stmt = stmt.Where("fapiao_type = ?", filter.FapiaoType)
	}
	if filter.Submitter != "" {
		stmt = stmt.Where("submitter = ?", filter.Submitter)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("erp_created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("erp_created_at <= ?", *filter.CreatedTo)
	}
	return stmt
}
