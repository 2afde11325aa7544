package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/arontabacinik/itirp/pkg/types"
)

// HTTPExecutor submits orders to a venue gateway over REST.
//
// Response status codes map onto the error taxonomy: 200 and 201 carry a
// fill, 429 and 5xx are transient (the gateway or the venue behind it is
// expected to recover), and any other status is a permanent business
// rejection. Transport errors and timeouts are transient.
type HTTPExecutor struct {
	http   *resty.Client
	rl     *TokenBucket
	logger *slog.Logger
}

// executeRequest is the gateway's order submission body.
type executeRequest struct {
	OrderID  string `json:"order_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

// executeResponse is the gateway's fill confirmation.
type executeResponse struct {
	FilledQuantity string `json:"filled_quantity"`
	FilledPrice    string `json:"filled_price"`
	FilledAt       time.Time `json:"filled_at"`
	Reason         string `json:"reason,omitempty"`
}

// NewHTTPExecutor creates a REST executor against the gateway at baseURL.
func NewHTTPExecutor(baseURL, apiKey string, logger *slog.Logger) *HTTPExecutor {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &HTTPExecutor{
		http:   httpClient,
		rl:     NewTokenBucket(50, 10),
		logger: logger.With("component", "http-executor"),
	}
}

// Execute submits the order and maps the gateway's response onto a fill or
// a classified error.
func (e *HTTPExecutor) Execute(ctx context.Context, order types.Order) (types.Fill, error) {
	if err := e.rl.Wait(ctx); err != nil {
		return types.Fill{}, types.TransientExecError("rate limit wait", err)
	}

	req := executeRequest{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Quantity: order.Quantity.String(),
		Price:    order.LimitPrice.String(),
	}

	var result executeResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post("/executions")
	if err != nil {
		return types.Fill{}, types.TransientExecError("gateway unreachable", err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated:
		qty, err := decimal.NewFromString(result.FilledQuantity)
		if err != nil {
			return types.Fill{}, types.PermanentExecError("malformed fill quantity", err)
		}
		price, err := decimal.NewFromString(result.FilledPrice)
		if err != nil {
			return types.Fill{}, types.PermanentExecError("malformed fill price", err)
		}
		filledAt := result.FilledAt
		if filledAt.IsZero() {
			filledAt = time.Now().UTC()
		}
		return types.Fill{
			OrderID:  order.OrderID,
			Symbol:   order.Symbol,
			Side:     order.Side,
			Quantity: qty,
			Price:    price,
			FilledAt: filledAt,
		}, nil

	case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
		e.logger.Warn("gateway transient failure",
			"order_id", order.OrderID,
			"status", resp.StatusCode(),
		)
		return types.Fill{}, types.TransientExecError(
			fmt.Sprintf("gateway status %d", resp.StatusCode()), nil)

	default:
		reason := result.Reason
		if reason == "" {
			reason = fmt.Sprintf("gateway status %d", resp.StatusCode())
		}
		return types.Fill{}, types.PermanentExecError(reason, nil)
	}
}
