package petstore

import (
	"context"
	"net/http"
	"strings"
)

const statusUp = "UP"

// HealthResponse is the body of a downstream health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Date      string `json:"date"`
	Container string `json:"container"`
}

// IsUp reports whether the service declared itself healthy.
func (h *HealthResponse) IsUp() bool {
	return strings.EqualFold(h.Status, statusUp)
}

func (h *HealthResponse) applyDefaults() {
	for _, v := range []*string{&h.Version, &h.Date, &h.Container} {
		if *v == "" {
			*v = unknownValue
		}
	}
}

// HealthChecker is implemented by every downstream client.
type HealthChecker interface {
	Target() string
	Health(ctx context.Context) (*HealthResponse, error)
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	response := &HealthResponse{}
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, "Health", response); err != nil {
		return nil, err
	}

	response.applyDefaults()

	return response, nil
}
