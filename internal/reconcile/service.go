package reconcile

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/correlation"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/observability/metrics"
	"github.com/smallbiznis/fapiaolink/internal/partition"
	"github.com/smallbiznis/fapiaolink/internal/submit"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Tenants     tenantdir.Service
	Ledger      ledger.Service
	Correlation correlation.Store
	Repo        invoicedomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	tenants     tenantdir.Service
	ledger      ledger.Service
	correlation correlation.Store
	repo        invoicedomain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconcile"),
		clock:       p.Clock,
		tenants:     p.Tenants,
		ledger:      p.Ledger,
		correlation: p.Correlation,
		repo:        p.Repo,
	}
}

// Ingest reconciles one raw callback body. The endpoint is
// unauthenticated, so anything that cannot be routed through a known
// correlation entry is acknowledged and dropped rather than surfaced
// as an error the provider would retry forever.
func (s *Service) Ingest(ctx context.Context, payload []byte) Response {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.log.Warn("unreadable callback payload", zap.Error(err))
		metrics.Default().IncCallback("malformed")
		return Response{Success: true, Message: "ignored"}
	}

	method := strings.ToLower(strings.TrimSpace(envelope.Method))
	if method != MethodInvoiceResult && method != MethodRedNoteResult {
		metrics.Default().IncCallback("ignored")
		return Response{Success: true, Message: "ignored"}
	}

	var data CallbackData
	if err := decodeInner(envelope.Data, &data); err != nil {
		s.log.Warn("unreadable callback data",
			zap.String("method", method),
			zap.Error(err),
		)
		metrics.Default().IncCallback("malformed")
		return Response{Success: true, Message: "ignored"}
	}

	prefix, erpInvoiceIDs, err := submit.ParseToken(data.OrderToken)
	if err != nil {
		s.log.Warn("callback with unparseable order token",
			zap.String("order_token", data.OrderToken),
		)
		metrics.Default().IncCallback("unparseable_token")
		return Response{Success: true, Message: "ignored"}
	}

	entry, err := s.correlation.Get(ctx, data.OrderToken)
	if err == correlation.ErrNotFound {
		s.log.Warn("callback for unknown order token",
			zap.String("order_token", data.OrderToken),
		)
		metrics.Default().IncCallback("unknown_token")
		return Response{Success: true, Message: "ignored"}
	}
	if err != nil {
		metrics.Default().IncCallback("failed")
		return Response{Success: false, Message: err.Error()}
	}

	settings, err := s.tenants.Resolve(ctx, entry.TenantID)
	if err != nil || !settings.Complete() {
		// The directory lookup is repeatable, but the settings captured
		// at submission time still authenticate the ledger call when the
		// directory cannot answer.
		settings = rehydrateSettings(entry.AuthContext)
		if !settings.Complete() {
			s.log.Error("cannot resolve tenant for callback",
				zap.String("tenant_id", entry.TenantID),
				zap.String("order_token", data.OrderToken),
				zap.Error(err),
			)
			metrics.Default().IncCallback("failed")
			return Response{Success: false, Message: "tenant resolution failed"}
		}
	}
	key := partition.DeriveKey(settings.LedgerBaseURL, settings.CompanyID)

	outcome := s.outcome(prefix, method, data)
	results := make([]EntityResult, 0, len(erpInvoiceIDs))
	allApplied := true
	for _, id := range erpInvoiceIDs {
		result := s.apply(ctx, settings, key, id, data, outcome)
		if !result.Updated {
			allApplied = false
		}
		results = append(results, result)
	}

	if allApplied {
		metrics.Default().IncCallback("applied")
		return Response{Success: true, Results: results}
	}

	// A failed ledger write is still acknowledged as processed. Asking
	// the provider to resend would not apply it any better; the next
	// sync pass reads the ledger directly.
	metrics.Default().IncCallback("partial")
	s.log.Warn("callback acknowledged with unapplied invoices",
		zap.String("order_token", data.OrderToken),
	)
	return Response{Success: true, Message: "accepted with failures", Results: results}
}

// rehydrateSettings decodes the connection settings the orchestrator
// stored alongside the token at submission time.
func rehydrateSettings(authContext string) *tenantdir.ConnectionSettings {
	if strings.TrimSpace(authContext) == "" {
		return nil
	}
	var settings tenantdir.ConnectionSettings
	if err := json.Unmarshal([]byte(authContext), &settings); err != nil {
		return nil
	}
	return &settings
}

// apply writes one invoice's outcome to the ledger first and to the
// cache only after the ledger accepted it. The ledger is the system of
// record; the cache may lag but never lead.
func (s *Service) apply(ctx context.Context, settings *tenantdir.ConnectionSettings, partitionKey string, erpInvoiceID int64, data CallbackData, outcome invoicedomain.Outcome) EntityResult {
	patch := s.buildPatch(data, outcome)
	if err := s.ledger.PatchStatus(ctx, settings, erpInvoiceID, patch); err != nil {
		s.log.Error("ledger status write failed",
			zap.Int64("erp_invoice_id", erpInvoiceID),
			zap.Error(err),
		)
		return EntityResult{ErpInvoiceID: erpInvoiceID, Error: err.Error()}
	}

	if err := s.repo.ApplyOutcome(ctx, s.db, partitionKey, erpInvoiceID, outcome); err != nil {
		// The ledger already holds the truth; a stale cache entry heals
		// on the next sync.
		s.log.Warn("cache update failed after ledger write",
			zap.Int64("erp_invoice_id", erpInvoiceID),
			zap.Error(err),
		)
	}
	return EntityResult{ErpInvoiceID: erpInvoiceID, Updated: true}
}

func (s *Service) outcome(prefix, method string, data CallbackData) invoicedomain.Outcome {
	outcome := invoicedomain.Outcome{
		ProviderInvoiceID: data.ProviderInvoiceID,
		SerialNo:          data.SerialNo,
		HasPdf:            data.PdfURL != "",
		At:                s.clock.Now(),
	}
	raw, err := json.Marshal(data)
	if err == nil {
		outcome.RawPayload = raw
	}

	if !success(data.Status) {
		outcome.Status = invoicedomain.StatusError
		outcome.Comment = strings.TrimSpace(data.ErrorCode + " " + data.ErrorMessage)
		return outcome
	}
	if prefix == submit.PrefixRed || method == MethodRedNoteResult {
		outcome.Status = invoicedomain.StatusRedNote
		outcome.RedSerialNo = data.SerialNo
		outcome.SerialNo = ""
		return outcome
	}
	outcome.Status = invoicedomain.StatusSubmitted
	return outcome
}

func (s *Service) buildPatch(data CallbackData, outcome invoicedomain.Outcome) ledger.StatusPatch {
	patch := ledger.StatusPatch{}
	if len(outcome.RawPayload) > 0 {
		payload := string(outcome.RawPayload)
		patch.ExceptionPayload = &payload
	}

	switch outcome.Status {
	case invoicedomain.StatusSubmitted:
		code := 1
		patch.StatusCode = &code
		if data.SerialNo != "" {
			patch.SerialNo = &data.SerialNo
		}
		if data.ProviderInvoiceID != "" {
			patch.ProviderInvoiceID = &data.ProviderInvoiceID
		}
		if outcome.HasPdf {
			hasPdf := true
			patch.HasPdf = &hasPdf
		}
	case invoicedomain.StatusRedNote:
		comment := "red note issued: " + data.SerialNo
		patch.Comment = &comment
	default:
		code := 2
		patch.StatusCode = &code
		if outcome.Comment != "" {
			patch.Comment = &outcome.Comment
		}
	}
	return patch
}

func success(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "succeeded", "ok", "0000":
		return true
	default:
		return false
	}
}
