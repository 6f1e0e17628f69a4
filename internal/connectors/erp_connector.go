package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// ERPConnector reads order aggregates from the company ERP's PostgreSQL
// replica. Read-only: the single query below is the whole surface.
type ERPConnector struct {
	db *sql.DB
}

// NewERPConnector opens the ERP connection. The DSN comes from config;
// an empty DSN should be handled by the caller with a NoopProvider.
func NewERPConnector(dsn string) (*ERPConnector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ERP connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &ERPConnector{db: db}, nil
}

func (c *ERPConnector) OrderContext(ctx context.Context, customerID string) (map[string]interface{}, error) {
	if customerID == "" {
		return nil, nil
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(MAX(total_amount), 0)
		FROM orders
		WHERE customer_ref = $1
	`, customerID)

	var orderCount int64
	var totalAmount, largestAmount float64
	if err := row.Scan(&orderCount, &totalAmount, &largestAmount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query ERP orders: %w", err)
	}

	return map[string]interface{}{
		"orderCount":    orderCount,
		"totalAmount":   totalAmount,
		"largestAmount": largestAmount,
	}, nil
}

func (c *ERPConnector) Close() error {
	return c.db.Close()
}
