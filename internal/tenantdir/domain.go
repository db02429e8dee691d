// Package tenantdir resolves tenants to their ledger connection
// settings via the tenant directory service.
package tenantdir

import (
	"context"
	"errors"
	"strings"
)

// ConnectionSettings holds everything needed to reach a tenant's ledger.
type ConnectionSettings struct {
	LedgerBaseURL string `json:"ledgerBaseUrl"`
	CompanyID     string `json:"companyId"`
	UserAccount   string `json:"userAccount"`
	Password      string `json:"password,omitempty"`
	APIKey        string `json:"apiKey,omitempty"`
}

// Complete reports whether the settings are usable for ledger calls.
func (s *ConnectionSettings) Complete() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.LedgerBaseURL) != "" &&
		strings.TrimSpace(s.CompanyID) != "" &&
		strings.TrimSpace(s.UserAccount) != ""
}

// Tenant is a directory entry.
type Tenant struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	InvoicingEnabled bool   `json:"invoicingEnabled"`
}

type Service interface {
	// Resolve returns the ledger connection settings for a tenant, or
	// ErrSettingsNotFound when the directory has no entry.
	Resolve(ctx context.Context, tenantID string) (*ConnectionSettings, error)
	// ListEnabled returns all tenants with the invoicing capability.
	ListEnabled(ctx context.Context) ([]Tenant, error)
}

var (
	ErrSettingsNotFound   = errors.New("tenant_settings_not_found")
	ErrSettingsIncomplete = errors.New("tenant_settings_incomplete")
)
