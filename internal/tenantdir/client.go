package tenantdir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tenantdir",
	fx.Provide(NewClient),
)

// Client talks to the tenant directory over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Service {
	timeout := cfg.DirectoryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.DirectoryBaseURL,
		token:   cfg.DirectoryToken,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("tenantdir"),
	}
}

func (c *Client) Resolve(ctx context.Context, tenantID string) (*ConnectionSettings, error) {
	var settings ConnectionSettings
	status, err := c.getJSON(ctx, fmt.Sprintf("%s/tenants/%s/ledger-settings", c.baseURL, tenantID), &settings)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrSettingsNotFound
	}
	return &settings, nil
}

func (c *Client) ListEnabled(ctx context.Context) ([]Tenant, error) {
	var payload struct {
		Tenants []Tenant `json:"tenants"`
	}
	status, err := c.getJSON(ctx, c.baseURL+"/tenants?capability=invoicing", &payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}

	enabled := make([]Tenant, 0, len(payload.Tenants))
	for _, tenant := range payload.Tenants {
		if tenant.InvoicingEnabled {
			enabled = append(enabled, tenant)
		}
	}
	return enabled, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tenant directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("tenant directory status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode tenant directory response: %w", err)
	}
	return resp.StatusCode, nil
}
