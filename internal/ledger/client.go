package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger",
	fx.Provide(NewClient),
)

// Client is the HTTP implementation of the ledger Service. It is
// stateless: connection settings are passed per call because every
// tenant points at a different ledger instance.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Service {
	timeout := cfg.LedgerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log.Named("ledger"),
	}
}

func (c *Client) QueryDelta(ctx context.Context, settings *tenantdir.ConnectionSettings, since time.Time, pageSize int) ([]RawInvoice, error) {
	if !settings.Complete() {
		return nil, tenantdir.ErrSettingsIncomplete
	}

	query := url.Values{}
	query.Set("company", settings.CompanyID)
	query.Set("createdFrom", since.UTC().Format(time.RFC3339))
	query.Set("expand", "lines,taxes")
	query.Set("order", "createdAt desc")
	query.Set("limit", fmt.Sprintf("%d", pageSize))

	var payload struct {
		Invoices []RawInvoice `json:"invoices"`
	}
	if err := c.do(ctx, settings, http.MethodGet, "/invoices?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Invoices, nil
}

func (c *Client) GetByID(ctx context.Context, settings *tenantdir.ConnectionSettings, id int64) (*RawInvoice, error) {
	if !settings.Complete() {
		return nil, tenantdir.ErrSettingsIncomplete
	}

	var invoice RawInvoice
	path := fmt.Sprintf("/invoices/%d?company=%s&expand=lines,taxes", id, url.QueryEscape(settings.CompanyID))
	if err := c.do(ctx, settings, http.MethodGet, path, nil, &invoice); err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, ErrNotFound
	}
	return &invoice, nil
}

func (c *Client) PatchStatus(ctx context.Context, settings *tenantdir.ConnectionSettings, id int64, patch StatusPatch) error {
	if !settings.Complete() {
		return tenantdir.ErrSettingsIncomplete
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/invoices/%d?company=%s", id, url.QueryEscape(settings.CompanyID))
	return c.do(ctx, settings, http.MethodPatch, path, body, nil)
}

func (c *Client) do(ctx context.Context, settings *tenantdir.ConnectionSettings, method, path string, body []byte, out any) error {
	endpoint := strings.TrimRight(settings.LedgerBaseURL, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(settings.UserAccount, settings.Password)
	if settings.APIKey != "" {
		req.Header.Set("X-Api-Key", settings.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		// Preserve the upstream status and message verbatim.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ledger status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}
