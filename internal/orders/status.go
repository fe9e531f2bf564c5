package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Role is the capacity in which a user acts on an order.
type Role uint8

const (
	RoleBuyer Role = 1 << iota
	RoleSeller
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	default:
		return "unknown"
	}
}

// validNext maps each status to its legal successors and the roles allowed to
// request that move. Status is order-global: any seller of a line moves the
// whole order.
var validNext = map[Status]map[Status]Role{
	StatusPending: {
		StatusProcessing: RoleSeller,
		StatusCancelled:  RoleSeller | RoleBuyer,
	},
	StatusProcessing: {
		StatusShipped:   RoleSeller,
		StatusCancelled: RoleSeller,
	},
	StatusShipped: {
		StatusDelivered: RoleSeller,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	_, ok := validNext[from][to]
	return ok
}

// Allows reports whether role may move an order from one status to another.
func Allows(from, to Status, role Role) bool {
	return validNext[from][to]&role != 0
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// ParseStatus accepts any casing ("shipped", "Shipped", "SHIPPED").
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v)}
	}
	return s, nil
}

var statusMessages = map[Status]string{
	StatusProcessing: "order is being processed",
	StatusShipped:    "order has shipped",
	StatusDelivered:  "order delivered",
	StatusCancelled:  "order cancelled",
}

// StatusMessage is the buyer-facing text for a status change.
func StatusMessage(s Status) string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("order status changed to %s", strings.ToLower(string(s)))
}
