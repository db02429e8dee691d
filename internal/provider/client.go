package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provider",
	fx.Provide(NewClient),
)

// Client signs and posts submit requests. The provider authenticates
// requests by an HMAC-SHA256 signature over body, timestamp and nonce.
type Client struct {
	baseURL string
	appID   string
	secret  []byte
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Service {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.ProviderBaseURL,
		appID:   cfg.ProviderAppID,
		secret:  []byte(cfg.ProviderSecret),
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("provider"),
	}
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Operation != OperationRedNote && len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-App-Id", c.appID)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := newNonce()
	httpReq.Header.Set("X-Timestamp", timestamp)
	httpReq.Header.Set("X-Nonce", nonce)
	httpReq.Header.Set("X-Signature", c.sign(body, timestamp, nonce))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &Error{
			Code:    strconv.Itoa(resp.StatusCode),
			Message: strings.TrimSpace(string(msg)),
		}
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if !result.Success {
		return &result, &Error{Code: result.ErrorCode, Message: result.ErrorMessage}
	}
	return &result, nil
}

func (c *Client) sign(body []byte, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

func newNonce() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
