package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "forex-scanner/internal/errors"
	"forex-scanner/internal/models"
)

// BridgeGateway talks to a terminal bridge service over HTTP. The bridge
// owns the broker session; this client is stateless and safe for concurrent
// use by the symbol pipelines.
type BridgeGateway struct {
	baseURL  string
	login    string
	password string
	server   string
	client   *http.Client
}

// BridgeConfig configures the bridge client.
type BridgeConfig struct {
	BaseURL  string
	Login    string
	Password string
	Server   string
	Timeout  time.Duration
}

// NewBridgeGateway creates a bridge client.
func NewBridgeGateway(cfg BridgeConfig) *BridgeGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &BridgeGateway{
		baseURL:  cfg.BaseURL,
		login:    cfg.Login,
		password: cfg.Password,
		server:   cfg.Server,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *BridgeGateway) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.NewGatewayError(op, "", err)
	}
	return b.do(op, req, out)
}

func (b *BridgeGateway) post(ctx context.Context, op, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewGatewayError(op, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewGatewayError(op, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(op, req, out)
}

func (b *BridgeGateway) do(op string, req *http.Request, out interface{}) error {
	req.SetBasicAuth(b.login, b.password)
	req.Header.Set("X-Server", b.server)

	resp, err := b.client.Do(req)
	if err != nil {
		return apperrors.NewGatewayError(op, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewGatewayError(op, "",
			fmt.Errorf("bridge returned %d: %s", resp.StatusCode, msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewGatewayError(op, "", fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// GetTick implements Gateway.
func (b *BridgeGateway) GetTick(ctx context.Context, symbol string) (*models.Tick, error) {
	var tick models.Tick
	q := url.Values{"symbol": {symbol}}
	if err := b.get(ctx, "tick", "/v1/tick", q, &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

// GetSymbolInfo implements Gateway.
func (b *BridgeGateway) GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	var info models.SymbolInfo
	q := url.Values{"symbol": {symbol}}
	if err := b.get(ctx, "symbol_info", "/v1/symbol", q, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetCandles implements Gateway.
func (b *BridgeGateway) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	var candles []models.Candle
	q := url.Values{
		"symbol":    {symbol},
		"timeframe": {timeframe},
		"count":     {strconv.Itoa(count)},
	}
	if err := b.get(ctx, "candles", "/v1/candles", q, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// GetAccountInfo implements Gateway.
func (b *BridgeGateway) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	var account models.AccountInfo
	if err := b.get(ctx, "account", "/v1/account", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetOpenPositions implements Gateway.
func (b *BridgeGateway) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	var positions []models.Position
	if err := b.get(ctx, "positions", "/v1/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetHistoryDeals implements Gateway.
func (b *BridgeGateway) GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	var deals []models.Deal
	q := url.Values{
		"from": {from.UTC().Format(time.RFC3339)},
		"to":   {to.UTC().Format(time.RFC3339)},
	}
	if err := b.get(ctx, "deals", "/v1/deals", q, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// PlaceOrder implements Gateway.
func (b *BridgeGateway) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	var result OrderResult
	if err := b.post(ctx, "place_order", "/v1/orders", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ModifyPosition implements Gateway.
func (b *BridgeGateway) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	payload := map[string]interface{}{
		"ticket":      ticket,
		"stop_loss":   stopLoss,
		"take_profit": takeProfit,
	}
	return b.post(ctx, "modify_position", "/v1/positions/modify", payload, nil)
}

// PartialClose implements Gateway.
func (b *BridgeGateway) PartialClose(ctx context.Context, ticket int64, fraction float64) error {
	payload := map[string]interface{}{
		"ticket":   ticket,
		"fraction": fraction,
	}
	return b.post(ctx, "partial_close", "/v1/positions/partial_close", payload, nil)
}

// ClosePosition implements Gateway.
func (b *BridgeGateway) ClosePosition(ctx context.Context, ticket int64) error {
	payload := map[string]interface{}{"ticket": ticket}
	return b.post(ctx, "close_position", "/v1/positions/close", payload, nil)
}
