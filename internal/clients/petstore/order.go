package petstore

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

const (
	// OrderService is the target name of the order service.
	OrderService = "order-service"

	orderPath       = "/petstoreorderservice/v2/store/order"
	orderHealthPath = "/petstoreorderservice/v2/health"
)

// ErrEmptyOrderID is returned when an order is looked up without an id.
var ErrEmptyOrderID = errors.New("order id is required")

// Order is the shopping cart of a session, keyed by the session id.
type Order struct {
	ID       string    `json:"id"`
	Email    string    `json:"email,omitempty"`
	Products []Product `json:"products,omitempty"`
	Status   string    `json:"status,omitempty"`
	Complete bool      `json:"complete"`
}

// OrderClient calls the order service.
type OrderClient struct {
	*Client
}

// NewOrderClient wraps c, which must point at the order service.
func NewOrderClient(c *Client) *OrderClient {
	return &OrderClient{Client: c}
}

// UpdateOrder creates the order or merges the given changes into it.
func (c *OrderClient) UpdateOrder(ctx context.Context, order *Order) (*Order, error) {
	updated := &Order{}
	if err := c.DoJSON(ctx, http.MethodPost, orderPath, order, "UpdateOrder", updated); err != nil {
		return nil, err
	}

	return updated, nil
}

// GetOrder fetches the order with the given id.
func (c *OrderClient) GetOrder(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, ErrEmptyOrderID
	}

	order := &Order{}
	if err := c.DoJSON(ctx, http.MethodGet, orderPath+"/"+url.PathEscape(id), nil, "GetOrder", order); err != nil {
		return nil, err
	}

	return order, nil
}

// Health queries the health endpoint of the order service.
func (c *OrderClient) Health(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, orderHealthPath)
}
