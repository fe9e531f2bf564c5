package orders

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string          `json:"id"`
	ExternalID   string          `json:"-"`
	BuyerID      string          `json:"buyer_id"`
	ContactEmail string          `json:"contact_email"`
	ContactPhone string          `json:"contact_phone"`
	Status       Status          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Items        []OrderItem     `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderItem snapshots the product at checkout. SellerID never changes after
// creation; it drives seller authorisation and the seller view.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SellerID    string          `json:"seller_id"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SellerIDs lists the distinct sellers in line order.
func (o Order) SellerIDs() []string {
	out := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if !slices.Contains(out, it.SellerID) {
			out = append(out, it.SellerID)
		}
	}
	return out
}

func (o Order) HasSeller(userID string) bool {
	return userID != "" && slices.ContainsFunc(o.Items, func(it OrderItem) bool {
		return it.SellerID == userID
	})
}

// IsParticipant reports whether userID is the buyer or one of the sellers.
func (o Order) IsParticipant(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.HasSeller(userID))
}

func (o Order) item(itemID string) (OrderItem, int, bool) {
	for i, it := range o.Items {
		if it.ID == itemID {
			return it, i, true
		}
	}
	return OrderItem{}, -1, false
}

func computeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// LineInput is one cart line submitted at checkout.
type LineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type CreateOrderCommand struct {
	BuyerID        string      `json:"buyer_id" validate:"required"`
	Email          string      `json:"email" validate:"required,email"`
	Phone          string      `json:"phone" validate:"required,phone"`
	Items          []LineInput `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string      `json:"-"`
}

type UpdateItemCommand struct {
	OrderID  string
	ItemID   string
	Quantity int
	ActorID  string
}

type DeleteItemCommand struct {
	OrderID string
	ItemID  string
	ActorID string
}

// ItemRemoval is the outcome of DeleteItem. When the removed line was the
// last one the order itself is gone and Order holds its final state.
type ItemRemoval struct {
	Order        Order `json:"order"`
	OrderDeleted bool  `json:"order_deleted"`
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(in []LineInput) []LineInput {
	out := make([]LineInput, 0, len(in))
	index := make(map[string]int, len(in))
	for _, l := range in {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}
