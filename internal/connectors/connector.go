package connectors

import "context"

// OrderContextProvider supplies read-only ERP order data for a customer.
// The trigger dispatcher merges the returned map into the condition
// snapshot under the "order" key, so rule authors can write conditions
// like order.totalAmount > 500. Implementations must never write to the
// ERP.
type OrderContextProvider interface {
	OrderContext(ctx context.Context, customerID string) (map[string]interface{}, error)
	Close() error
}

// NoopProvider is used when no ERP connection is configured. Conditions on
// order fields then fail closed, which is the documented behavior for
// unresolvable paths.
type NoopProvider struct{}

func (NoopProvider) OrderContext(ctx context.Context, customerID string) (map[string]interface{}, error) {
	return nil, nil
}

func (NoopProvider) Close() error { return nil }
