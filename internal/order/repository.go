package order

import "github.com/wichananm65/pet-shop-payment/internal/cart"

// Repository defines persistence for orders. The Mark* methods are
// compare-and-swap transitions: they lock the order row, apply the
// transition only from Pending, close the buyer's open cart in the same
// transaction where the transition says so, and report whether this call
// performed the transition. Two concurrent deliveries of the same
// callback therefore produce exactly one transition and one cart closure.
type Repository interface {
	Create(ord Order) (Order, error)
	GetByID(id string) (Order, error)
	ListByOwner(owner cart.Owner) ([]Order, error)

	// MarkPaid moves Pending -> Paid and awaitpay -> pend, records the
	// gateway transaction reference, payment method and payment date,
	// and closes the buyer's open cart atomically. When the order is
	// already Paid it returns the unchanged snapshot and false.
	MarkPaid(id, transactionID, method, paymentDate, updatedAt string) (Order, bool, error)

	// MarkFailed moves Pending -> Failed and the order to cancel.
	// Already-terminal payment states return the snapshot and false.
	MarkFailed(id, updatedAt string) (Order, bool, error)

	// SetOrderStatus and SetPaymentStatus are the administrative
	// overrides: they apply unconditionally, bypassing the state
	// machines above.
	SetOrderStatus(id string, status OrderStatus, updatedAt string) (Order, error)
	SetPaymentStatus(id string, status PaymentStatus, updatedAt string) (Order, error)
}
