// Package submit orchestrates invoice submissions to the e-invoicing
// provider and records the correlation needed to route the provider's
// asynchronous callback back to the right tenant.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/correlation"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/observability/metrics"
	"github.com/smallbiznis/fapiaolink/internal/partition"
	"github.com/smallbiznis/fapiaolink/internal/provider"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadySubmitted = errors.New("invoice_already_submitted")
	ErrNotSubmitted     = errors.New("invoice_not_submitted")
	ErrMixedCustomers   = errors.New("merge_customers_differ")
	ErrTooFewInvoices   = errors.New("merge_needs_two_invoices")
)

// MissingInvoicesError names the ids a merge asked for that the ledger
// does not have.
type MissingInvoicesError struct {
	IDs []int64
}

func (e *MissingInvoicesError) Error() string {
	parts := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "ledger invoices not found: " + strings.Join(parts, ", ")
}

// Receipt is the synchronous answer to a submission request. The final
// outcome arrives later through the provider callback.
type Receipt struct {
	OrderToken   string  `json:"order_token"`
	ErpInvoices  []int64 `json:"erp_invoice_ids"`
	Accepted     bool    `json:"accepted"`
	ProviderNote string  `json:"provider_note,omitempty"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	Clock       clock.Clock
	Tenants     tenantdir.Service
	Ledger      ledger.Service
	Provider    provider.Service
	Correlation correlation.Store
	Repo        invoicedomain.Repository
}

type Orchestrator struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.Config
	clock       clock.Clock
	tenants     tenantdir.Service
	ledger      ledger.Service
	provider    provider.Service
	correlation correlation.Store
	repo        invoicedomain.Repository
}

func New(p Params) *Orchestrator {
	return &Orchestrator{
		db:          p.DB,
		log:         p.Log.Named("submit"),
		cfg:         p.Config,
		clock:       p.Clock,
		tenants:     p.Tenants,
		ledger:      p.Ledger,
		provider:    p.Provider,
		correlation: p.Correlation,
		repo:        p.Repo,
	}
}

// SubmitSingle sends one ledger invoice to the provider. The invoice
// is re-read live from the ledger so a stale cache cannot change what
// gets invoiced.
func (o *Orchestrator) SubmitSingle(ctx context.Context, tenantID string, erpInvoiceID int64) (*Receipt, error) {
	settings, key, err := o.resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := o.rejectSubmitted(ctx, key, erpInvoiceID); err != nil {
		return nil, err
	}

	raw, err := o.ledger.GetByID(ctx, settings, erpInvoiceID)
	if err != nil {
		return nil, err
	}

	token := NewOrderToken(erpInvoiceID)
	req := provider.SubmitRequest{
		Operation:    provider.OperationInvoice,
		OrderToken:   token,
		CustomerName: raw.CustomerName,
		ResaleID:     raw.ResaleID,
		FapiaoType:   raw.FapiaoType,
		Remark:       raw.Comment,
		CallbackURL:  o.callbackURL(),
		Lines:        mapLines(raw.Lines),
	}
	return o.dispatch(ctx, "single", tenantID, token, []int64{erpInvoiceID}, settings, req)
}

// SubmitMerge sends several invoices of one customer as a single
// provider request with their lines aggregated.
func (o *Orchestrator) SubmitMerge(ctx context.Context, tenantID string, erpInvoiceIDs []int64) (*Receipt, error) {
	if len(erpInvoiceIDs) < 2 {
		return nil, ErrTooFewInvoices
	}
	settings, key, err := o.resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	invoices, missing, err := o.fetchAll(ctx, settings, erpInvoiceIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, &MissingInvoicesError{IDs: missing}
	}

	first := invoices[0]
	var lines []ledger.RawLine
	for _, raw := range invoices {
		if raw.CustomerName != first.CustomerName || raw.CustomerNumber != first.CustomerNumber {
			return nil, ErrMixedCustomers
		}
		if err := o.rejectSubmitted(ctx, key, raw.ID); err != nil {
			return nil, err
		}
		lines = append(lines, raw.Lines...)
	}

	token := NewMergeToken(erpInvoiceIDs)
	req := provider.SubmitRequest{
		Operation:    provider.OperationMerge,
		OrderToken:   token,
		CustomerName: first.CustomerName,
		ResaleID:     first.ResaleID,
		FapiaoType:   first.FapiaoType,
		CallbackURL:  o.callbackURL(),
		Lines:        mapLines(AggregateLines(lines)),
	}
	return o.dispatch(ctx, "merge", tenantID, token, erpInvoiceIDs, settings, req)
}

// SubmitRedNote requests a red (reversal) note for an invoice that was
// previously issued by the provider.
func (o *Orchestrator) SubmitRedNote(ctx context.Context, tenantID string, erpInvoiceID int64, reason string) (*Receipt, error) {
	settings, key, err := o.resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	record, err := o.repo.FindByErpID(ctx, o.db, key, erpInvoiceID)
	if err != nil {
		return nil, err
	}
	if record.Status != invoicedomain.StatusSubmitted || record.SerialNo == "" {
		return nil, ErrNotSubmitted
	}

	token := NewRedToken(erpInvoiceID)
	req := provider.SubmitRequest{
		Operation:    provider.OperationRedNote,
		OrderToken:   token,
		CustomerName: record.CustomerName,
		ResaleID:     record.ResaleID,
		FapiaoType:   record.FapiaoType,
		Remark:       reason,
		CallbackURL:  o.callbackURL(),
		RedSerialNo:  record.SerialNo,
	}
	return o.dispatch(ctx, "red_note", tenantID, token, []int64{erpInvoiceID}, settings, req)
}

// dispatch records the correlation entry before the provider is asked
// to do anything, so a callback can never arrive for a token the store
// has not seen. The entry carries the resolved connection settings so
// the reconciler can still reach the ledger if the directory cannot
// answer when the callback lands.
func (o *Orchestrator) dispatch(ctx context.Context, kind, tenantID, token string, ids []int64, settings *tenantdir.ConnectionSettings, req provider.SubmitRequest) (*Receipt, error) {
	entry := correlation.Entry{
		TenantID:  tenantID,
		CreatedAt: o.clock.Now(),
	}
	if authCtx, err := json.Marshal(settings); err == nil {
		entry.AuthContext = string(authCtx)
	}
	if err := o.correlation.Put(ctx, token, entry); err != nil {
		return nil, fmt.Errorf("record correlation: %w", err)
	}

	result, err := o.provider.Submit(ctx, req)
	if err != nil {
		metrics.Default().IncSubmission(kind, "rejected")
		o.log.Warn("provider rejected submission",
			zap.String("kind", kind),
			zap.String("tenant_id", tenantID),
			zap.String("order_token", token),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.Default().IncSubmission(kind, "accepted")
	o.log.Info("submission accepted",
		zap.String("kind", kind),
		zap.String("tenant_id", tenantID),
		zap.String("order_token", token),
		zap.Int64s("erp_invoice_ids", ids),
	)
	return &Receipt{
		OrderToken:   token,
		ErpInvoices:  ids,
		Accepted:     true,
		ProviderNote: result.SerialNo,
	}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, tenantID string) (*tenantdir.ConnectionSettings, string, error) {
	settings, err := o.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	if !settings.Complete() {
		return nil, "", tenantdir.ErrSettingsIncomplete
	}
	return settings, partition.DeriveKey(settings.LedgerBaseURL, settings.CompanyID), nil
}

// rejectSubmitted refuses re-submission of an invoice the cache already
// shows as issued. An uncached invoice is fine: the cache trails the
// ledger by design.
func (o *Orchestrator) rejectSubmitted(ctx context.Context, partitionKey string, erpInvoiceID int64) error {
	record, err := o.repo.FindByErpID(ctx, o.db, partitionKey, erpInvoiceID)
	if err == invoicedomain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if record.Status == invoicedomain.StatusSubmitted {
		return ErrAlreadySubmitted
	}
	return nil
}

func (o *Orchestrator) fetchAll(ctx context.Context, settings *tenantdir.ConnectionSettings, ids []int64) ([]*ledger.RawInvoice, []int64, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		missing  []int64
		firstErr error
	)
	invoices := make([]*ledger.RawInvoice, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			raw, err := o.ledger.GetByID(ctx, settings, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == ledger.ErrNotFound:
				missing = append(missing, id)
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			default:
				invoices[i] = raw
			}
		}(i, id)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, nil, firstErr
	}
	return invoices, missing, nil
}

func (o *Orchestrator) callbackURL() string {
	if o.cfg.CallbackBaseURL == "" {
		return ""
	}
	return o.cfg.CallbackBaseURL + "/v1/callbacks/invoicing"
}

// mapLines converts ledger lines to the provider's wire shape. The
// provider wants the tax rate as a fraction, not a percentage.
func mapLines(lines []ledger.RawLine) []provider.RequestLine {
	out := make([]provider.RequestLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, provider.RequestLine{
			Description:   line.Description,
			CommodityCode: line.CommodityCode,
			Unit:          line.Unit,
			Quantity:      line.Quantity.String(),
			UnitPrice:     line.UnitPrice.String(),
			Amount:        line.ExtendedPrice.String(),
			TaxRate:       line.TaxPercent.Div(decimal.NewFromInt(100)).String(),
		})
	}
	return out
}
