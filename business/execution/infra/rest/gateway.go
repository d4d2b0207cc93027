// Package rest adapts a venue's HTTP order API to the execution ports.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/execution/app"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/httpclient"
)

// GatewayConfig holds the venue connection parameters.
type GatewayConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	APISecret      string
	RequestTimeout time.Duration
}

// Gateway submits orders over the venue's REST API.
type Gateway struct {
	name   string
	client httpclient.Client
	logger *slog.Logger
}

// orderPayload carries Quantity in the order's input currency and Price as
// the output-per-input rate, the same convention OrderRequest uses.
type orderPayload struct {
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price"`
	TimeInForce   string `json:"timeInForce"`
}

type orderStatusResponse struct {
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
}

type withdrawalPayload struct {
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

func NewGateway(cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if cfg.Name == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: gateway needs name and base URL")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}

	client, err := httpclient.New(
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("rest: http client for %s: %w", cfg.Name, err)
	}

	return &Gateway{
		name:   cfg.Name,
		client: client,
		logger: logger.With(
			slog.String("component", "execution.rest"),
			slog.String("exchange", cfg.Name),
		),
	}, nil
}

// Name returns the venue identifier.
func (g *Gateway) Name() string {
	return g.name
}

// PlaceOrder submits a limit IOC order keyed by the client order ID.
func (g *Gateway) PlaceOrder(ctx context.Context, req app.OrderRequest) error {
	payload := orderPayload{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Pair,
		Side:          string(req.Side),
		Quantity:      req.Amount.String(),
		Price:         req.LimitPrice.String(),
		TimeInForce:   "IOC",
	}

	resp, err := g.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("exchange", g.name),
			httpclient.NewLabel("endpoint", "place_order"),
		),
	).
		SetBody(payload).
		Post(ctx, "/api/v1/orders")
	if err != nil {
		return apperror.Wrap(err, apperror.CodeOrderSubmitFailed, req.Pair+"@"+g.name)
	}
	if resp.IsError() {
		return apperror.New(apperror.CodeOrderSubmitFailed,
			apperror.WithContext(fmt.Sprintf("%s@%s: http %d", req.Pair, g.name, resp.StatusCode)))
	}
	return nil
}

// GetOrderStatus looks an order up by its client order ID.
func (g *Gateway) GetOrderStatus(ctx context.Context, clientOrderID string) (*app.OrderStatus, error) {
	resp, err := g.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("exchange", g.name),
			httpclient.NewLabel("endpoint", "order_status"),
		),
	).
		Get(ctx, "/api/v1/orders/"+clientOrderID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeOrderStatusFailed, clientOrderID+"@"+g.name)
	}
	if resp.IsError() {
		return nil, apperror.New(apperror.CodeOrderStatusFailed,
			apperror.WithContext(fmt.Sprintf("%s@%s: http %d", clientOrderID, g.name, resp.StatusCode)))
	}

	var payload orderStatusResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeOrderStatusFailed, "decode status from "+g.name)
	}
	return g.toStatus(payload)
}

func (g *Gateway) toStatus(payload orderStatusResponse) (*app.OrderStatus, error) {
	filled, err := decimal.NewFromString(payload.ExecutedQty)
	if err != nil {
		filled = decimal.Zero
	}
	avg, err := decimal.NewFromString(payload.AvgPrice)
	if err != nil {
		avg = decimal.Zero
	}

	state, err := mapOrderStatus(payload.Status)
	if err != nil {
		return nil, err
	}
	return &app.OrderStatus{
		ClientOrderID: payload.ClientOrderID,
		State:         state,
		FilledAmount:  filled,
		AvgFillPrice:  avg,
	}, nil
}

func mapOrderStatus(status string) (domain.LegState, error) {
	switch status {
	case "NEW", "PENDING":
		return domain.LegSubmitted, nil
	case "FILLED":
		return domain.LegFilled, nil
	case "PARTIALLY_FILLED", "EXPIRED_PARTIAL":
		return domain.LegPartiallyFilled, nil
	case "REJECTED", "CANCELED", "EXPIRED":
		return domain.LegRejected, nil
	default:
		return "", apperror.New(apperror.CodeOrderStatusFailed,
			apperror.WithContext("unknown venue order status "+status))
	}
}

// Transfer requests a withdrawal to another venue's deposit address.
func (g *Gateway) Transfer(ctx context.Context, currency string, amount decimal.Decimal, toExchange string) error {
	payload := withdrawalPayload{
		Currency:    currency,
		Amount:      amount.String(),
		Destination: toExchange,
	}

	resp, err := g.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("exchange", g.name),
			httpclient.NewLabel("endpoint", "withdraw"),
		),
	).
		SetBody(payload).
		Post(ctx, "/api/v1/withdrawals")
	if err != nil {
		return apperror.Wrap(err, apperror.CodeOrderSubmitFailed, "withdraw "+currency+" from "+g.name)
	}
	if resp.IsError() {
		return apperror.New(apperror.CodeOrderSubmitFailed,
			apperror.WithContext(fmt.Sprintf("withdraw %s from %s: http %d", currency, g.name, resp.StatusCode)))
	}
	return nil
}
