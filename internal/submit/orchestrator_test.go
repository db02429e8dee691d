package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/correlation"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/invoice/repository"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/provider"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tenantsStub struct {
	settings map[string]*tenantdir.ConnectionSettings
}

func (s *tenantsStub) Resolve(_ context.Context, tenantID string) (*tenantdir.ConnectionSettings, error) {
	settings, ok := s.settings[tenantID]
	if !ok {
		return nil, tenantdir.ErrSettingsNotFound
	}
	return settings, nil
}

func (s *tenantsStub) ListEnabled(context.Context) ([]tenantdir.Tenant, error) {
	return nil, nil
}

type ledgerStub struct {
	invoices map[int64]*ledger.RawInvoice
}

func (s *ledgerStub) QueryDelta(context.Context, *tenantdir.ConnectionSettings, time.Time, int) ([]ledger.RawInvoice, error) {
	return nil, nil
}

func (s *ledgerStub) GetByID(_ context.Context, _ *tenantdir.ConnectionSettings, id int64) (*ledger.RawInvoice, error) {
	raw, ok := s.invoices[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return raw, nil
}

func (s *ledgerStub) PatchStatus(context.Context, *tenantdir.ConnectionSettings, int64, ledger.StatusPatch) error {
	return nil
}

// providerStub records requests and checks the correlation entry is
// already visible when the provider is invoked.
type providerStub struct {
	store      correlation.Store
	requests   []provider.SubmitRequest
	correlated []bool
	err        error
}

func (s *providerStub) Submit(ctx context.Context, req provider.SubmitRequest) (*provider.SubmitResult, error) {
	s.requests = append(s.requests, req)
	if s.store != nil {
		_, err := s.store.Get(ctx, req.OrderToken)
		s.correlated = append(s.correlated, err == nil)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &provider.SubmitResult{Success: true, SerialNo: "SN-1"}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&invoicedomain.InvoiceRecord{}, &invoicedomain.InvoiceLineItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func testSettings() *tenantdir.ConnectionSettings {
	return &tenantdir.ConnectionSettings{
		LedgerBaseURL: "https://erp.example.com/prod/api/v1",
		CompanyID:     "CN01",
		UserAccount:   "svc",
		Password:      "secret",
	}
}

const testPartitionKey = "prod_CN01"

func rawInvoice(id int64, customer string) *ledger.RawInvoice {
	return &ledger.RawInvoice{
		ID:             id,
		CustomerName:   customer,
		CustomerNumber: "C-" + customer,
		ResaleID:       "91310000MA1FL0000X",
		FapiaoType:     "special",
		Posted:         true,
		Lines: []ledger.RawLine{
			{
				CommodityCode: "1060101",
				Unit:          "pcs",
				Quantity:      decimal.NewFromInt(1),
				UnitPrice:     decimal.RequireFromString("10.00"),
				ExtendedPrice: decimal.RequireFromString("10.00"),
				TaxPercent:    decimal.NewFromInt(13),
			},
		},
	}
}

type fixture struct {
	orchestrator *Orchestrator
	db           *gorm.DB
	provider     *providerStub
	store        correlation.Store
	node         *snowflake.Node
}

func newFixture(t *testing.T, ldg *ledgerStub) *fixture {
	t.Helper()

	db := openTestDB(t)
	node := mustNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := correlation.NewMemoryStore(24*time.Hour, clk)
	prov := &providerStub{store: store}

	orchestrator := New(Params{
		DB:  db,
		Log: zap.NewNop(),
		Config: config.Config{
			CallbackBaseURL: "https://bridge.example.com",
		},
		Clock:       clk,
		Tenants:     &tenantsStub{settings: map[string]*tenantdir.ConnectionSettings{"tenant-a": testSettings()}},
		Ledger:      ldg,
		Provider:    prov,
		Correlation: store,
		Repo:        repository.Provide(),
	})
	return &fixture{orchestrator: orchestrator, db: db, provider: prov, store: store, node: node}
}

func (f *fixture) seedRecord(t *testing.T, erpID int64, status invoicedomain.InvoiceStatus, serialNo string) {
	t.Helper()
	record := invoicedomain.InvoiceRecord{
		ID:           f.node.Generate(),
		PartitionKey: testPartitionKey,
		ErpInvoiceID: erpID,
		CustomerName: "Acme Trading Co",
		Status:       status,
		SerialNo:     serialNo,
		FapiaoType:   "special",
		ErpCreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestSubmitSingleCorrelatesBeforeDispatch(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
	}})

	receipt, err := f.orchestrator.SubmitSingle(context.Background(), "tenant-a", 10)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !receipt.Accepted {
		t.Fatal("expected accepted receipt")
	}

	prefix, ids, err := ParseToken(receipt.OrderToken)
	if err != nil || prefix != PrefixOrder || len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("bad token %q: prefix=%q ids=%v err=%v", receipt.OrderToken, prefix, ids, err)
	}

	if len(f.provider.requests) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(f.provider.requests))
	}
	if !f.provider.correlated[0] {
		t.Fatal("correlation entry missing at dispatch time")
	}

	entry, err := f.store.Get(context.Background(), receipt.OrderToken)
	if err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.TenantID != "tenant-a" {
		t.Fatalf("tenant = %q", entry.TenantID)
	}
	if !strings.Contains(entry.AuthContext, `"companyId":"CN01"`) {
		t.Fatalf("auth context missing settings: %q", entry.AuthContext)
	}

	req := f.provider.requests[0]
	if req.Operation != provider.OperationInvoice {
		t.Fatalf("operation = %q", req.Operation)
	}
	if req.CallbackURL != "https://bridge.example.com/v1/callbacks/invoicing" {
		t.Fatalf("callback url = %q", req.CallbackURL)
	}
	if len(req.Lines) != 1 || req.Lines[0].TaxRate != "0.13" {
		t.Fatalf("lines = %+v", req.Lines)
	}
}

func TestSubmitSingleRejectsAlreadySubmitted(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
	}})
	f.seedRecord(t, 10, invoicedomain.StatusSubmitted, "SN-9")

	_, err := f.orchestrator.SubmitSingle(context.Background(), "tenant-a", 10)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
	if len(f.provider.requests) != 0 {
		t.Fatal("provider should not have been called")
	}
}

func TestSubmitSinglePropagatesProviderRejection(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
	}})
	f.provider.err = &provider.Error{Code: "4001", Message: "tax id rejected"}

	_, err := f.orchestrator.SubmitSingle(context.Background(), "tenant-a", 10)
	var providerErr *provider.Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("err = %v, want provider.Error", err)
	}
}

func TestSubmitMergeNeedsTwoInvoices(t *testing.T) {
	f := newFixture(t, &ledgerStub{})
	if _, err := f.orchestrator.SubmitMerge(context.Background(), "tenant-a", []int64{10}); !errors.Is(err, ErrTooFewInvoices) {
		t.Fatalf("err = %v, want ErrTooFewInvoices", err)
	}
}

func TestSubmitMergeNamesMissingInvoices(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
	}})

	_, err := f.orchestrator.SubmitMerge(context.Background(), "tenant-a", []int64{10, 20, 30})
	var missing *MissingInvoicesError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingInvoicesError", err)
	}
	if len(missing.IDs) != 2 || missing.IDs[0] != 20 || missing.IDs[1] != 30 {
		t.Fatalf("missing ids = %v, want [20 30]", missing.IDs)
	}
}

func TestSubmitMergeRejectsMixedCustomers(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
		20: rawInvoice(20, "Globex Ltd"),
	}})

	if _, err := f.orchestrator.SubmitMerge(context.Background(), "tenant-a", []int64{10, 20}); !errors.Is(err, ErrMixedCustomers) {
		t.Fatalf("err = %v, want ErrMixedCustomers", err)
	}
}

func TestSubmitMergeAggregatesLines(t *testing.T) {
	f := newFixture(t, &ledgerStub{invoices: map[int64]*ledger.RawInvoice{
		10: rawInvoice(10, "Acme Trading Co"),
		20: rawInvoice(20, "Acme Trading Co"),
	}})

	receipt, err := f.orchestrator.SubmitMerge(context.Background(), "tenant-a", []int64{10, 20})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	prefix, ids, err := ParseToken(receipt.OrderToken)
	if err != nil || prefix != PrefixMerge {
		t.Fatalf("bad token %q: %v", receipt.OrderToken, err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("ids = %v, want [10 20]", ids)
	}

	req := f.provider.requests[0]
	if req.Operation != provider.OperationMerge {
		t.Fatalf("operation = %q", req.Operation)
	}
	if len(req.Lines) != 1 {
		t.Fatalf("expected aggregated single line, got %d", len(req.Lines))
	}
	if req.Lines[0].Quantity != "2" || req.Lines[0].Amount != "20.00" {
		t.Fatalf("line = %+v", req.Lines[0])
	}
}

func TestSubmitRedNoteRequiresIssuedInvoice(t *testing.T) {
	f := newFixture(t, &ledgerStub{})
	f.seedRecord(t, 10, invoicedomain.StatusPending, "")

	if _, err := f.orchestrator.SubmitRedNote(context.Background(), "tenant-a", 10, "wrong buyer"); !errors.Is(err, ErrNotSubmitted) {
		t.Fatalf("err = %v, want ErrNotSubmitted", err)
	}
}

func TestSubmitRedNoteReferencesSerial(t *testing.T) {
	f := newFixture(t, &ledgerStub{})
	f.seedRecord(t, 10, invoicedomain.StatusSubmitted, "SN-42")

	receipt, err := f.orchestrator.SubmitRedNote(context.Background(), "tenant-a", 10, "wrong buyer")
	if err != nil {
		t.Fatalf("red note: %v", err)
	}

	prefix, ids, err := ParseToken(receipt.OrderToken)
	if err != nil || prefix != PrefixRed || ids[0] != 10 {
		t.Fatalf("bad token %q", receipt.OrderToken)
	}

	req := f.provider.requests[0]
	if req.Operation != provider.OperationRedNote {
		t.Fatalf("operation = %q", req.Operation)
	}
	if req.RedSerialNo != "SN-42" {
		t.Fatalf("red serial = %q, want SN-42", req.RedSerialNo)
	}
	if req.Remark != "wrong buyer" {
		t.Fatalf("remark = %q", req.Remark)
	}
}
