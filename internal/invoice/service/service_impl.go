package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/partition"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"github.com/smallbiznis/fapiaolink/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Tenants tenantdir.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	tenants tenantdir.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		repo:    p.Repo,
		tenants: p.Tenants,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	key, err := s.partitionKey(ctx, req.TenantID)
	if err != nil {
		return domain.ListResponse{}, err
	}

	status, err := parseStatus(req.Status)
	if err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{
		ErpInvoiceID: strings.TrimSpace(req.ErpInvoiceID),
		CustomerName: strings.TrimSpace(req.CustomerName),
		Status:       status,
		FapiaoType:   strings.TrimSpace(req.FapiaoType),
		Submitter:    strings.TrimSpace(req.Submitter),
		CreatedFrom:  req.CreatedFrom,
		CreatedTo:    req.CreatedTo,
	}

	page := pagination.Pagination{Page: req.Page, Limit: req.Limit}.Normalize()
	records, total, err := s.repo.List(ctx, s.db, key, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	totals, err := s.repo.StatusTotals(ctx, s.db, key, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	return domain.ListResponse{
		Invoices: records,
		PageInfo: pagination.PageInfo{
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
		},
		StatusTotals: totals,
	}, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, erpInvoiceID int64) (*domain.InvoiceRecord, error) {
	key, err := s.partitionKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByErpID(ctx, s.db, key, erpInvoiceID)
}

func (s *Service) partitionKey(ctx context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", domain.ErrInvalidTenant
	}
	settings, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return partition.DeriveKey(settings.LedgerBaseURL, settings.CompanyID), nil
}

func parseStatus(value string) (domain.InvoiceStatus, error) {
	switch domain.InvoiceStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case domain.StatusPending:
		return domain.StatusPending, nil
	case domain.StatusSubmitted:
		return domain.StatusSubmitted, nil
	case domain.StatusError:
		return domain.StatusError, nil
	case domain.StatusRedNote:
		return domain.StatusRedNote, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}
