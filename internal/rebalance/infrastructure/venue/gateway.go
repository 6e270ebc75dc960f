package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/rebalancer/internal/rebalance/domain"
	"github.com/wyfcoding/rebalancer/pkg/logger"
)

const (
	marginOrderPath = "/api/v1/margin/order"
	ordersPath      = "/api/v1/orders"

	listPageSize = 500
)

// orderDoneCodes are venue responses meaning the order is already
// resolved (filled or canceled). Canceling such an order is a no-op.
var orderDoneCodes = map[string]struct{}{
	"400100": {}, // order does not exist or is not allowed to cancel
	"404000": {}, // url not found / order gone
}

// Gateway implements domain.OrderGateway against the venue REST API.
type Gateway struct {
	client *Client
}

// NewGateway creates the order gateway.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

var _ domain.OrderGateway = (*Gateway)(nil)

type submitOrderPayload struct {
	ClientOID   string `json:"clientOid"`
	Side        string `json:"side"`
	Symbol      string `json:"symbol"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Type        string `json:"type"`
	TimeInForce string `json:"timeInForce"`
	AutoBorrow  bool   `json:"autoBorrow"`
	AutoRepay   bool   `json:"autoRepay"`
}

type submitOrderResponse struct {
	OrderID string `json:"orderId"`
}

// SubmitMarginLimitOrder places a GTC margin limit order. The venue
// deduplicates on ClientOID, which makes retried submissions idempotent.
func (g *Gateway) SubmitMarginLimitOrder(ctx context.Context, req domain.SubmitOrderRequest) (string, error) {
	payload := submitOrderPayload{
		ClientOID:   req.ClientOID,
		Side:        string(req.Side),
		Symbol:      req.Symbol,
		Price:       req.Price.String(),
		Size:        req.Size.String(),
		Type:        "limit",
		TimeInForce: "GTC",
		AutoBorrow:  true,
		AutoRepay:   true,
	}

	data, err := g.client.do(ctx, "POST", marginOrderPath, payload)
	if err != nil {
		return "", fmt.Errorf("submit %s %s order: %w", req.Symbol, req.Side, err)
	}

	var resp submitOrderResponse
	if err := unmarshalData(data, &resp); err != nil {
		return "", err
	}

	logger.Info(ctx, "order submitted",
		"symbol", req.Symbol,
		"side", req.Side,
		"price", req.Price,
		"size", req.Size,
		"order_id", resp.OrderID,
		"client_oid", req.ClientOID,
	)
	return resp.OrderID, nil
}

// CancelOrder cancels by venue order ID. An order that was already filled
// or canceled is treated as successfully canceled.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	_, err := g.client.do(ctx, "DELETE", ordersPath+"/"+orderID, nil)
	if err != nil {
		var venueErr *domain.VenueError
		if errors.As(err, &venueErr) {
			if _, done := orderDoneCodes[venueErr.Code]; done {
				logger.Info(ctx, "order already resolved, cancel is a no-op",
					"order_id", orderID,
					"code", venueErr.Code,
				)
				return nil
			}
		}
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	logger.Info(ctx, "order canceled", "order_id", orderID)
	return nil
}

type listOrdersResponse struct {
	CurrentPage int             `json:"currentPage"`
	TotalPage   int             `json:"totalPage"`
	Items       []listOrderItem `json:"items"`
}

type listOrderItem struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	CreatedAt int64  `json:"createdAt"` // epoch millis
}

// ListActiveOrders fetches all open orders matching filter, walking the
// venue's pagination.
func (g *Gateway) ListActiveOrders(ctx context.Context, filter domain.ActiveOrderFilter) ([]domain.OpenOrder, error) {
	var orders []domain.OpenOrder

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("status", "active")
		query.Set("currentPage", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(listPageSize))
		if filter.TradeType != "" {
			query.Set("tradeType", filter.TradeType)
		}
		if filter.OrderType != "" {
			query.Set("type", filter.OrderType)
		}

		data, err := g.client.do(ctx, "GET", ordersPath+"?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("list active orders page %d: %w", page, err)
		}

		var resp listOrdersResponse
		if err := unmarshalData(data, &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			order, err := item.toDomain()
			if err != nil {
				logger.Warn(ctx, "skipping unparsable order in listing",
					"order_id", item.ID,
					"error", err,
				)
				continue
			}
			orders = append(orders, order)
		}

		if resp.TotalPage == 0 || resp.CurrentPage >= resp.TotalPage {
			return orders, nil
		}
	}
}

func (i listOrderItem) toDomain() (domain.OpenOrder, error) {
	price, err := decimal.NewFromString(i.Price)
	if err != nil {
		return domain.OpenOrder{}, fmt.Errorf("order %s has invalid price %q: %w", i.ID, i.Price, err)
	}
	size, err := decimal.NewFromString(i.Size)
	if err != nil {
		return domain.OpenOrder{}, fmt.Errorf("order %s has invalid size %q: %w", i.ID, i.Size, err)
	}

	return domain.OpenOrder{
		OrderID:   i.ID,
		Symbol:    i.Symbol,
		Side:      domain.Side(i.Side),
		Price:     price,
		Size:      size,
		CreatedAt: time.UnixMilli(i.CreatedAt),
		Status:    domain.OrderStatusActive,
	}, nil
}

func unmarshalData(data []byte, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unexpected venue response shape: %v: %w", err, domain.ErrPermanentRejection)
	}
	return nil
}
