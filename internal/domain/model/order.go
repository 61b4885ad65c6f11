package model

import "time"

// Settlement method of one order line. Items on deferred terms (cheque,
// installments) are financed outside the payment core and never enter the
// payable cash amount.
type SettlementMethod string

const (
	SettlementCash     SettlementMethod = "cash"
	SettlementDeferred SettlementMethod = "deferred"
)

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusAwaiting  OrderStatus = "awaiting_payment"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

type OrderItem struct {
	ID         string
	Title      string
	UnitPrice  int64 // major unit (IRT)
	Quantity   int64
	Settlement SettlementMethod
}

// Order is the read model of the order collaborator. The payment core only
// reads it, plus one write: flipping the status to confirmed on settlement.
type Order struct {
	ID            string
	CustomerID    string
	CustomerPhone string
	CustomerEmail string
	Status        OrderStatus
	Items         []OrderItem
	CreatedAt     time.Time
}

// PayableCashAmount sums the lines flagged for immediate cash settlement, in
// the major unit. Deferred lines are intentionally excluded.
func (o *Order) PayableCashAmount() int64 {
	var sum int64
	for _, it := range o.Items {
		if it.Settlement == SettlementCash {
			sum += it.UnitPrice * it.Quantity
		}
	}
	return sum
}
