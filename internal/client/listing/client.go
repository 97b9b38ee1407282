// Package listing calls the marketplace listing service, which knows whether
// a user's funds are committed to an open trade.
package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"walletservice/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const canWithdrawPath = "/api/Listing/canwithdraw"

// ErrUnavailable wraps every failure to obtain an answer: transport errors,
// timeouts, non-2xx statuses and undecodable bodies.
var ErrUnavailable = errors.New("listing service unavailable")

type CanWithdrawRequest struct {
	UserID           string      `json:"userId"`
	AmountToWithdraw json.Number `json:"amountToWithdraw"`
}

type CanWithdrawResponse struct {
	Success bool     `json:"success"`
	Data    bool     `json:"data"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.ListingConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{},
		logger:     logger.With(zap.String("component", "listing_client")),
	}
}

// CanWithdraw asks whether userID may take amount out of the wallet. It makes
// exactly one attempt bounded by the configured timeout. A false answer is
// returned with a nil error; any failure to get an answer is ErrUnavailable.
func (c *Client) CanWithdraw(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(CanWithdrawRequest{
		UserID:           userID,
		AmountToWithdraw: json.Number(amount.String()),
	})
	if err != nil {
		return false, fmt.Errorf("marshal canwithdraw request: %w", err)
	}

	url := c.baseURL + canWithdrawPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create canwithdraw request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("checking withdraw eligibility",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("canwithdraw call failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("listing service returned non-OK status",
			zap.String("user_id", userID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)))
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result CanWithdrawResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("failed to decode canwithdraw response",
			zap.String("user_id", userID),
			zap.Error(err))
		return false, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	allowed := result.Success && result.Data
	if !allowed {
		c.logger.Warn("withdraw denied by listing service",
			zap.String("user_id", userID),
			zap.Bool("success", result.Success),
			zap.String("message", result.Message),
			zap.Strings("errors", result.Errors))
	}
	return allowed, nil
}
