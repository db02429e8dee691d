// Package syncengine keeps the local invoice cache trailing each
// tenant's ledger. Sync is insert-only: records never change after
// they land, so re-running a window is harmless.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/config"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/observability/metrics"
	"github.com/smallbiznis/fapiaolink/internal/partition"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Tenants tenantdir.Service
	Ledger  ledger.Service
	Repo    invoicedomain.Repository
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	genID   *snowflake.Node
	clock   clock.Clock
	tenants tenantdir.Service
	ledger  ledger.Service
	repo    invoicedomain.Repository
}

func New(p Params) *Engine {
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("syncengine"),
		cfg:     p.Config,
		genID:   p.GenID,
		clock:   p.Clock,
		tenants: p.Tenants,
		ledger:  p.Ledger,
		repo:    p.Repo,
	}
}

// TenantResult reports one tenant's share of a sync run.
type TenantResult struct {
	TenantID     string
	PartitionKey string
	Fetched      int
	Cached       int
	Skipped      int
	Err          error
}

// RunOnce syncs every invoicing-enabled tenant in parallel. A failing
// tenant only taints its own result; the others settle normally.
func (e *Engine) RunOnce(ctx context.Context) ([]TenantResult, error) {
	tenants, err := e.tenants.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]TenantResult, len(tenants))
	var wg sync.WaitGroup
	for i, tenant := range tenants {
		wg.Add(1)
		go func(i int, tenant tenantdir.Tenant) {
			defer wg.Done()
			results[i] = e.syncTenant(ctx, tenant.ID)
		}(i, tenant)
	}
	wg.Wait()

	for _, result := range results {
		if result.Err != nil {
			metrics.Default().IncSyncTenantFailure(result.TenantID)
			e.log.Warn("tenant sync failed",
				zap.String("tenant_id", result.TenantID),
				zap.Error(result.Err),
			)
			continue
		}
		metrics.Default().AddRecordsCached(result.TenantID, result.Cached)
	}
	return results, nil
}

func (e *Engine) syncTenant(ctx context.Context, tenantID string) TenantResult {
	result := TenantResult{TenantID: tenantID}

	settings, err := e.tenants.Resolve(ctx, tenantID)
	if errors.Is(err, tenantdir.ErrSettingsNotFound) {
		// Not an error: the tenant simply has not finished onboarding.
		e.log.Warn("skipping tenant without ledger settings",
			zap.String("tenant_id", tenantID),
		)
		return result
	}
	if err != nil {
		result.Err = err
		return result
	}
	if !settings.Complete() {
		e.log.Warn("skipping tenant with incomplete ledger settings",
			zap.String("tenant_id", tenantID),
		)
		return result
	}
	result.PartitionKey = partition.DeriveKey(settings.LedgerBaseURL, settings.CompanyID)

	since, err := e.repo.Watermark(ctx, e.db, result.PartitionKey)
	if err != nil {
		result.Err = err
		return result
	}

	invoices, err := e.ledger.QueryDelta(ctx, settings, since, e.cfg.SyncPageSize)
	if err != nil {
		result.Err = err
		return result
	}
	result.Fetched = len(invoices)

	for _, raw := range invoices {
		if !e.eligible(raw) {
			result.Skipped++
			continue
		}
		exists, err := e.repo.Exists(ctx, e.db, result.PartitionKey, raw.ID)
		if err != nil {
			result.Err = err
			return result
		}
		if exists {
			result.Skipped++
			continue
		}

		record := e.buildRecord(result.PartitionKey, raw)
		if err := e.repo.InsertWithLines(ctx, e.db, record); err != nil {
			if err == invoicedomain.ErrAlreadyCached {
				result.Skipped++
				continue
			}
			result.Err = err
			return result
		}
		result.Cached++
	}
	return result
}

// eligible keeps only posted invoices billed into the configured
// jurisdiction.
func (e *Engine) eligible(raw ledger.RawInvoice) bool {
	if !raw.Posted {
		return false
	}
	address := strings.TrimSpace(raw.BillToAddress)
	suffix := strings.TrimSpace(e.cfg.JurisdictionSuffix)
	if suffix == "" {
		return true
	}
	return strings.HasSuffix(strings.ToUpper(address), strings.ToUpper(suffix))
}

func (e *Engine) buildRecord(partitionKey string, raw ledger.RawInvoice) *invoicedomain.InvoiceRecord {
	now := e.clock.Now()
	prior := recoverPrior(raw)
	amount := decimal.Zero
	lines := make([]invoicedomain.InvoiceLineItem, 0, len(raw.Lines))
	for _, line := range raw.Lines {
		amount = amount.Add(line.ExtendedPrice)
		lines = append(lines, invoicedomain.InvoiceLineItem{
			ID:            e.genID.Generate(),
			Description:   line.Description,
			CommodityCode: line.CommodityCode,
			Unit:          line.Unit,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			ExtendedPrice: line.ExtendedPrice,
			TaxPercent:    line.TaxPercent,
			CreatedAt:     now,
		})
	}

	record := &invoicedomain.InvoiceRecord{
		ID:             e.genID.Generate(),
		PartitionKey:   partitionKey,
		ErpInvoiceID:   raw.ID,
		Description:    raw.Description,
		CustomerName:   raw.CustomerName,
		CustomerNumber: raw.CustomerNumber,
		ResaleID:       raw.ResaleID,
		Comment:        raw.Comment,
		FapiaoType:     raw.FapiaoType,
		Amount:         amount,
		Status:         initialStatus(raw, prior),
		OrderNumber:    raw.OrderNumber,
		PONumber:       raw.PONumber,
		Submitter:      raw.Submitter,
		ErpCreatedAt:   raw.CreatedAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Lines:          lines,
	}
	if payload := strings.TrimSpace(raw.ExceptionPayload); payload != "" {
		record.LastOutcome = []byte(payload)
	}
	if prior != nil {
		record.SerialNo = prior.SerialNo
		record.ProviderInvoiceID = prior.ProviderInvoiceID
		record.HasPdf = prior.PdfURL != ""
	}
	return record
}

// priorOutcome is the callback payload the reconciler wrote back into
// the ledger on an earlier run. A rebuilt cache row must not lose the
// serial number and provider invoice id it already earned.
type priorOutcome struct {
	Status            string `json:"status"`
	SerialNo          string `json:"serialNo"`
	ProviderInvoiceID string `json:"invoiceId"`
	PdfURL            string `json:"pdfUrl"`
}

func recoverPrior(raw ledger.RawInvoice) *priorOutcome {
	payload := strings.TrimSpace(raw.ExceptionPayload)
	if payload == "" {
		return nil
	}
	var prior priorOutcome
	if err := json.Unmarshal([]byte(payload), &prior); err != nil {
		return nil
	}
	return &prior
}

// initialStatus prefers the outcome this bridge previously wrote back
// into the ledger over the ledger's coarse status code.
func initialStatus(raw ledger.RawInvoice, prior *priorOutcome) invoicedomain.InvoiceStatus {
	if prior != nil {
		switch status := invoicedomain.InvoiceStatus(prior.Status); status {
		case invoicedomain.StatusPending,
			invoicedomain.StatusSubmitted,
			invoicedomain.StatusError,
			invoicedomain.StatusRedNote:
			return status
		}
		switch strings.ToLower(strings.TrimSpace(prior.Status)) {
		case "success", "succeeded", "ok", "0000":
			return invoicedomain.StatusSubmitted
		case "failed", "failure", "error":
			return invoicedomain.StatusError
		}
	}

	switch raw.StatusCode {
	case 0:
		return invoicedomain.StatusPending
	case 1:
		return invoicedomain.StatusSubmitted
	default:
		return invoicedomain.StatusError
	}
}
