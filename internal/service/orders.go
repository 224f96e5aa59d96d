package service

import (
	"context"
	"errors"
	"strings"

	"gitlab.com/gitlab-org/labkit/log"

	"github.com/chtrembl/petstoreapp/internal/clients/petstore"
	"github.com/chtrembl/petstoreapp/internal/requestctx"
)

// ErrNoSession is returned when an order is read or changed outside of a
// session.
var ErrNoSession = errors.New("no session for order")

// OrderStore reads and writes orders.
type OrderStore interface {
	UpdateOrder(ctx context.Context, order *petstore.Order) (*petstore.Order, error)
	GetOrder(ctx context.Context, id string) (*petstore.Order, error)
}

// CartUpdate is a change to the shopping cart of the current session.
type CartUpdate struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	Complete  bool  `json:"complete"`
}

// Orders manages the order that backs the shopping cart of a session.
type Orders struct {
	store OrderStore
}

// NewOrders creates the order service.
func NewOrders(store OrderStore) *Orders {
	return &Orders{store: store}
}

// Update applies the cart change to the order of the current session. The
// order id is the session id.
func (s *Orders) Update(ctx context.Context, update CartUpdate) (*petstore.Order, error) {
	rc, ok := requestctx.FromContext(ctx)
	if !ok || rc.Snapshot().SessionID == "" {
		return nil, &Error{Domain: OrderServiceError, Op: "Update", Err: ErrNoSession}
	}
	snapshot := rc.Snapshot()

	order := &petstore.Order{ID: snapshot.SessionID}
	if email := strings.TrimSpace(snapshot.UserEmail); email != "" {
		order.Email = email
	}

	if update.Complete {
		order.Complete = true
	} else {
		order.Products = []petstore.Product{{ID: update.ProductID, Quantity: update.Quantity}}
	}

	logger := log.WithContextFields(ctx, log.Fields{
		"order_id":   order.ID,
		"product_id": update.ProductID,
		"quantity":   update.Quantity,
		"complete":   update.Complete,
	})

	updated, err := s.store.UpdateOrder(ctx, order)
	if err != nil {
		logger.WithError(err).Error("Unable to update order")
		return nil, &Error{Domain: OrderServiceError, Op: "Update", Err: err}
	}

	logger.Info("Updated order")

	return updated, nil
}

// Get returns the order with the given id, or nil when it does not exist.
// Only the order of the current session is visible.
func (s *Orders) Get(ctx context.Context, id string) (*petstore.Order, error) {
	rc, ok := requestctx.FromContext(ctx)
	if !ok || rc.Snapshot().SessionID == "" {
		return nil, &Error{Domain: OrderServiceError, Op: "Get", Err: ErrNoSession}
	}

	logger := log.WithContextFields(ctx, log.Fields{"order_id": id})

	if id != rc.Snapshot().SessionID {
		logger.Debug("Order belongs to another session")
		return nil, nil
	}

	order, err := s.store.GetOrder(ctx, id)
	if petstore.IsKind(err, petstore.KindNotFound) {
		logger.Debug("Order not found")
		return nil, nil
	}

	if err != nil {
		logger.WithError(err).Error("Unable to retrieve order")
		return nil, &Error{Domain: OrderServiceError, Op: "Get", Err: err}
	}

	return order, nil
}
