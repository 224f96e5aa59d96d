package petstore

import (
	"context"
	"net/http"
	"net/url"
)

const (
	// ProductService is the target name of the product service.
	ProductService = "product-service"

	productsByStatusPath = "/petstoreproductservice/v2/product/findByStatus"
	productHealthPath    = "/petstoreproductservice/v2/health"
)

// Product is an item offered by the product service or held in an order.
type Product struct {
	ID       int64     `json:"id"`
	Category *Category `json:"category,omitempty"`
	Name     string    `json:"name,omitempty"`
	PhotoURL string    `json:"photoURL,omitempty"`
	Tags     []Tag     `json:"tags,omitempty"`
	Quantity int       `json:"quantity,omitempty"`
}

// ProductClient calls the product service.
type ProductClient struct {
	*Client
}

// NewProductClient wraps c, which must point at the product service.
func NewProductClient(c *Client) *ProductClient {
	return &ProductClient{Client: c}
}

// FindProductsByStatus lists the products in the given status.
func (c *ProductClient) FindProductsByStatus(ctx context.Context, status string) ([]Product, error) {
	var products []Product
	path := productsByStatusPath + "?" + url.Values{"status": {status}}.Encode()

	if err := c.DoJSON(ctx, http.MethodGet, path, nil, "FindProductsByStatus", &products); err != nil {
		return nil, err
	}

	return products, nil
}

// Health queries the health endpoint of the product service.
func (c *ProductClient) Health(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, productHealthPath)
}
