package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound signals the referenced product does not exist.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInsufficientStock signals a debit larger than the available stock.
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

type Product struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ShortfallError carries the stock that was available when a debit was refused.
type ShortfallError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }
