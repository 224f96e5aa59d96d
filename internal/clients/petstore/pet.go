package petstore

import (
	"context"
	"net/http"
	"net/url"
)

const (
	// PetService is the target name of the pet service.
	PetService = "pet-service"

	petsByStatusPath = "/petstorepetservice/v2/pet/findByStatus"
	petHealthPath    = "/petstorepetservice/v2/health"
)

// Category groups pets and products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag labels pets and products.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Pet is a pet offered by the pet service.
type Pet struct {
	ID       int64    `json:"id"`
	Category Category `json:"category"`
	Name     string   `json:"name"`
	PhotoURL string   `json:"photoURL"`
	Tags     []Tag    `json:"tags,omitempty"`
	Status   string   `json:"status,omitempty"`
}

// PetClient calls the pet service.
type PetClient struct {
	*Client
}

// NewPetClient wraps c, which must point at the pet service.
func NewPetClient(c *Client) *PetClient {
	return &PetClient{Client: c}
}

// FindPetsByStatus lists the pets in the given status.
func (c *PetClient) FindPetsByStatus(ctx context.Context, status string) ([]Pet, error) {
	var pets []Pet
	path := petsByStatusPath + "?" + url.Values{"status": {status}}.Encode()

	if err := c.DoJSON(ctx, http.MethodGet, path, nil, "FindPetsByStatus", &pets); err != nil {
		return nil, err
	}

	return pets, nil
}

// Health queries the health endpoint of the pet service.
func (c *PetClient) Health(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, petHealthPath)
}
