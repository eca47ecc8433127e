package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pricing/internal/obs"
	"github.com/noah-isme/backend-pricing/internal/resilience"
)

// Client calls the external promotion calculator over HTTP.
type Client struct {
	endpoint string
	http     resilience.HTTPClient
	logger   zerolog.Logger
}

// NewClient constructs a client posting to {baseURL}/promotions/calculate.
func NewClient(baseURL string, httpClient resilience.HTTPClient, logger zerolog.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/promotions/calculate",
		http:     httpClient,
		logger:   logger,
	}
}

// Calculate posts the snapshot and returns the calculator result. A negative discount is clamped
// to zero.
func (c *Client) Calculate(ctx context.Context, snap Snapshot) (Result, error) {
	start := time.Now()
	payload, err := json.Marshal(snap)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res Result
	if err := c.http.DoJSON(ctx, req, &res); err != nil {
		obs.ObservePromotionCall("error", float64(time.Since(start).Milliseconds()))
		return Result{}, err
	}
	obs.ObservePromotionCall("ok", float64(time.Since(start).Milliseconds()))

	if res.DiscountTotal.IsNegative() {
		c.logger.Warn().
			Str("discount_total", res.DiscountTotal.String()).
			Str("client_id", snap.ClientID).
			Msg("promotion_negative_discount_clamped")
		res.DiscountTotal = decimal.Zero
	}
	return res, nil
}
