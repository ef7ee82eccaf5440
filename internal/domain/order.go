package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// OrderID identifies an order within the connector that created it.
type OrderID string

// Side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes resting limit orders from immediate execution.
type OrderType string

const (
	// OrderTypeMaker rests on the book at the requested price.
	OrderTypeMaker OrderType = "maker"
	// OrderTypeTaker executes immediately against existing liquidity.
	OrderTypeTaker OrderType = "taker"
)

// OrderStatus is the order lifecycle state. Transitions are monotonic:
// open -> done | cancelled; rejected is only assigned pre-admission and is
// final.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusDone      OrderStatus = "done"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Reject reasons surfaced on rejected orders.
const (
	RejectReasonBalance      = "balance"
	RejectReasonBadSymbol    = "bad_symbol"
	RejectReasonInvalidOrder = "invalid_order"
	RejectReasonBadRequest   = "bad_request"
)

// PositionSide marks which side of a futures position an order affects.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Order is a ledger entry for a requested or resting trade. It is owned
// exclusively by the connector that created it; other components only read
// copies.
type Order struct {
	ID            OrderID         `json:"id"`
	ProductID     string          `json:"product_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"order_type"`
	Price         decimal.Decimal `json:"price"`
	OrigSize      decimal.Decimal `json:"orig_size"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	Status        OrderStatus     `json:"status"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	PostOnly      bool            `json:"post_only"`
	PositionSide  PositionSide    `json:"position_side,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DoneAt        time.Time       `json:"done_at,omitempty"`
}

// NewOrder creates an admitted open order. filled+remaining==orig holds from
// the start.
func NewOrder(id OrderID, productID string, side Side, typ OrderType, price, size decimal.Decimal, now time.Time) *Order {
	return &Order{
		ID:            id,
		ProductID:     productID,
		Side:          side,
		Type:          typ,
		Price:         price,
		OrigSize:      size,
		FilledSize:    decimal.Zero,
		RemainingSize: size,
		Status:        StatusOpen,
		CreatedAt:     now,
	}
}

// RejectedOrder creates a terminal rejection result. No resources are held
// and the order never entered the book.
func RejectedOrder(productID string, side Side, reason string) *Order {
	return &Order{
		ProductID:    productID,
		Side:         side,
		Status:       StatusRejected,
		RejectReason: reason,
	}
}

// Open reports whether the order still holds resources.
func (o *Order) Open() bool {
	return o.Status == StatusOpen
}

// Rejected reports whether the order was refused at admission.
func (o *Order) Rejected() bool {
	return o.Status == StatusRejected
}

// ApplyFill reduces the remaining size by fill and moves the order to done
// when nothing remains. It preserves filled+remaining==orig.
func (o *Order) ApplyFill(fill decimal.Decimal, at time.Time) error {
	if !o.Open() {
		return errors.Errorf("cannot fill order %s in status %s", o.ID, o.Status)
	}
	if fill.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("fill size must be positive, got %s", fill.String())
	}
	if fill.GreaterThan(o.RemainingSize) {
		return errors.Errorf("fill %s exceeds remaining %s for order %s",
			fill.String(), o.RemainingSize.String(), o.ID)
	}

	o.FilledSize = o.FilledSize.Add(fill)
	o.RemainingSize = o.OrigSize.Sub(o.FilledSize)

	if o.RemainingSize.LessThanOrEqual(decimal.Zero) {
		o.Status = StatusDone
		o.DoneAt = at
	}
	return nil
}

// Cancel moves an open order to cancelled. Cancelling a non-open order is a
// no-op; the intent is already satisfied.
func (o *Order) Cancel(at time.Time) {
	if !o.Open() {
		return
	}
	o.Status = StatusCancelled
	o.DoneAt = at
}

// Clone returns a copy safe to hand to callers.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}
