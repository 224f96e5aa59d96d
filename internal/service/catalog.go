package service

import (
	"context"

	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/clients/petstore"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

const (
	statusAvailable = "available"

	petPlaceholderPrefix     = "petstore.service.url:${PETSTOREPETSERVICE_URL} needs to be enabled for this service to work: "
	productPlaceholderPrefix = "petstore.service.url:${PETSTOREPRODUCTSERVICE_URL} needs to be enabled for this service to work: "
)

// PetFinder lists pets by status.
type PetFinder interface {
	FindPetsByStatus(ctx context.Context, status string) ([]petstore.Pet, error)
}

// ProductFinder lists products by status.
type ProductFinder interface {
	FindProductsByStatus(ctx context.Context, status string) ([]petstore.Product, error)
}

// Pets serves the pet catalog.
type Pets struct {
	finder PetFinder
}

// NewPets creates the pet catalog service.
func NewPets(finder PetFinder) *Pets {
	return &Pets{finder: finder}
}

// ByCategory returns the available pets of the given category.
//
// A failed downstream call is returned as *Error. Any other failure yields a
// single placeholder pet whose name describes the problem.
func (s *Pets) ByCategory(ctx context.Context, category string) ([]petstore.Pet, error) {
	pets, err := s.finder.FindPetsByStatus(ctx, statusAvailable)
	if err != nil {
		if domainErr := domainError(ctx, PetServiceError, "ByCategory", category, err); domainErr != nil {
			return nil, domainErr
		}

		return []petstore.Pet{{Name: petPlaceholderPrefix + err.Error()}}, nil
	}

	matching := make([]petstore.Pet, 0, len(pets))
	for _, pet := range pets {
		if pet.Category.Name == category {
			matching = append(matching, pet)
		}
	}

	log.WithContextFields(ctx, log.Fields{
		"category": category,
		"count":    len(matching),
	}).Info("Retrieved pets")

	return matching, nil
}

// Products serves the product catalog.
type Products struct {
	finder ProductFinder
}

// NewProducts creates the product catalog service.
func NewProducts(finder ProductFinder) *Products {
	return &Products{finder: finder}
}

// ByCategory returns the available products of the given category. When tag
// is set only products carrying that tag are returned. Failures are handled
// like Pets.ByCategory.
func (s *Products) ByCategory(ctx context.Context, category, tag string) ([]petstore.Product, error) {
	products, err := s.finder.FindProductsByStatus(ctx, statusAvailable)
	if err != nil {
		if domainErr := domainError(ctx, ProductServiceError, "ByCategory", category, err); domainErr != nil {
			return nil, domainErr
		}

		return []petstore.Product{{Name: productPlaceholderPrefix + err.Error()}}, nil
	}

	matching := make([]petstore.Product, 0, len(products))
	for _, product := range products {
		if product.Category == nil || product.Category.Name != category {
			continue
		}

		if tag != "" && !hasTag(product.Tags, tag) {
			continue
		}

		matching = append(matching, product)
	}

	log.WithContextFields(ctx, log.Fields{
		"category": category,
		"tag":      tag,
		"count":    len(matching),
	}).Info("Retrieved products")

	return matching, nil
}

func hasTag(tags []petstore.Tag, name string) bool {
	for _, tag := range tags {
		if tag.Name == name {
			return true
		}
	}

	return false
}

// domainError logs err and wraps it for the domain when it is a downstream
// failure. Other failures are logged and reported as nil.
func domainError(ctx context.Context, domain Domain, op, category string, err error) error {
	fields := log.Fields{
		"domain":   string(domain),
		"category": category,
	}
	if rc, ok := requestctx.FromContext(ctx); ok {
		fields["request_id"] = rc.RequestID()
		fields["trace_id"] = rc.TraceID()
	}

	if !isDownstreamError(err) {
		log.WithContextFields(ctx, fields).WithError(err).Error("Unexpected catalog failure")
		return nil
	}

	wrapped := &Error{Domain: domain, Op: op, Err: err}
	fields["operation"] = op
	fields["status"] = wrapped.Status()
	log.WithContextFields(ctx, fields).WithError(err).Error("Catalog downstream call failed")

	return wrapped
}
