package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order. The automated flow is
// awaitpay -> pend -> processing -> shipped -> success, with cancel
// reachable from awaitpay/pend/processing and err as the administrative
// escape from any state. success and cancel are terminal.
type OrderStatus string

const (
	StatusAwaitPay   OrderStatus = "awaitpay"
	StatusPending    OrderStatus = "pend"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusSuccess    OrderStatus = "success"
	StatusCancelled  OrderStatus = "cancel"
	StatusError      OrderStatus = "err"
)

// ParseOrderStatus rejects anything outside the closed vocabulary so an
// invalid state can never be constructed from API input.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusAwaitPay, StatusPending, StatusProcessing, StatusShipped, StatusSuccess, StatusCancelled, StatusError:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown orderStatus %q", ErrInvalidStatus, s)
}

// PaymentStatus is the payment state of an order. The automated path is
// Pending -> Paid or Pending -> Failed; Paid -> Refunded is admin-only.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "Pending"
	PaymentPaid       PaymentStatus = "Paid"
	PaymentFailed     PaymentStatus = "Failed"
	PaymentRefunded   PaymentStatus = "Refunded"
	PaymentProcessing PaymentStatus = "Processing"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentProcessing:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown paymentStatus %q", ErrInvalidStatus, s)
}

// Payment methods recorded on orders.
const (
	MethodCOD     = "cod"
	MethodGateway = "vnpay"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrInvalidStatus  = errors.New("invalid status value")
	ErrBadSignature   = errors.New("invalid gateway signature")
	ErrAmountMismatch = errors.New("gateway amount does not match order total")
)

// ValidationError reports a malformed checkout or callback request.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Contact is the customer snapshot captured at order time. It is never
// re-synced from the account profile afterwards.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
}

// Item is one order line. The unit price is a snapshot taken from the
// cart, decoupled from the live catalog price.
type Item struct {
	ProductID int             `json:"productID"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order is the persisted aggregate. The id is an opaque string so order
// numbers cannot be enumerated. Exactly one of UserID/AnonID identifies
// the buyer. TransactionID and PaymentDate are set when and only when
// the payment status is Paid.
type Order struct {
	OrderID       string          `json:"orderID"`
	UserID        int             `json:"userID,omitempty"`
	AnonID        string          `json:"anonID,omitempty"`
	Contact       Contact         `json:"contact"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	OrderStatus   OrderStatus     `json:"orderStatus"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	TransactionID string          `json:"transactionId,omitempty"`
	PaymentDate   string          `json:"paymentDate,omitempty"`
	Items         []Item          `json:"items"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
}
