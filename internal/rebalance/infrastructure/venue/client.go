// Package venue implements the signed REST client for the trading venue
// and the order gateway built on top of it.
package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/logger"
	"github.com/wyfcoding/rebalancer/pkg/metrics"
)

const (
	codeSuccess        = "200000"
	codeTooManyRequest = "429000"
)

// Credentials holds the venue API credentials.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
	KeyVersion string
}

// Client signs and sends authenticated requests against the venue.
//
// Every request carries API-KEY / API-SIGN / API-TIMESTAMP /
// API-PASSPHRASE / API-KEY-VERSION headers where
// sign = base64(HMAC-SHA256(secret, timestamp + method + path [+ body])).
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	metrics *metrics.Metrics

	// now is swapped in tests to pin the signed timestamp.
	now func() time.Time
}

// NewClient creates a venue client. metrics may be nil.
func NewClient(baseURL string, creds Credentials, timeout time.Duration, m *metrics.Metrics) *Client {
	if creds.KeyVersion == "" {
		creds.KeyVersion = "2"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
		now:     time.Now,
	}
}

// envelope is the venue's uniform response wrapper. Any code other than
// "200000" is an application-level error.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign computes base64(HMAC-SHA256(secret, payload)).
func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.creds.Secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// do sends a signed request. path must include the query string, because
// the query is part of the signed payload. body may be nil.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var (
		reqBody  io.Reader
		bodyJSON string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyJSON = string(data)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build venue request: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("API-KEY", c.creds.Key)
	req.Header.Set("API-SIGN", c.sign(timestamp+method+path+bodyJSON))
	req.Header.Set("API-TIMESTAMP", timestamp)
	req.Header.Set("API-PASSPHRASE", c.sign(c.creds.Passphrase))
	req.Header.Set("API-KEY-VERSION", c.creds.KeyVersion)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.VenueRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// Network failures and timeouts retry through bus redelivery.
		return nil, fmt.Errorf("venue request %s %s: %v: %w", method, path, err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("venue response %s %s: %v: %w", method, path, err, domain.ErrTransient)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if transientStatus(resp.StatusCode) {
			return nil, fmt.Errorf("venue returned status %d: %w", resp.StatusCode, domain.ErrTransient)
		}
		return nil, fmt.Errorf("venue returned status %d with unparsable body: %w", resp.StatusCode, domain.ErrPermanentRejection)
	}

	if env.Code == codeSuccess {
		logger.Debug(ctx, "venue request ok", "method", method, "path", path, "status", resp.StatusCode)
		return env.Data, nil
	}

	logger.Warn(ctx, "venue request failed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"code", env.Code,
		"msg", env.Msg,
	)
	return nil, &domain.VenueError{
		Code:      env.Code,
		Message:   env.Msg,
		Transient: transientStatus(resp.StatusCode) || env.Code == codeTooManyRequest,
	}
}

// transientStatus classifies HTTP status codes that are worth retrying.
// Application codes carry no retryability contract, so the status code is
// the primary heuristic.
func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
