package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoOpenCart means the owner has no cart in the open state.
	ErrNoOpenCart = errors.New("no open cart")
	// ErrInvalidOwner means the owner reference names neither an account
	// nor an anonymous session, or both at once.
	ErrInvalidOwner = errors.New("invalid cart owner")
)

// Owner identifies who a cart belongs to: a registered account by id, or
// an anonymous session by its opaque client-supplied id. Exactly one of
// the two must be set.
type Owner struct {
	UserID int
	AnonID string
}

func (o Owner) Valid() bool {
	return (o.UserID > 0) != (o.AnonID != "")
}

// Item is a priced cart line: the unit price is snapshotted when the
// product is added, decoupled from the live catalog price.
type Item struct {
	ProductID int             `json:"productID"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Cart statuses. A cart funds at most one order; it moves to closed when
// that order is paid and never reopens.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

type Cart struct {
	CartID    int    `json:"cartID"`
	UserID    int    `json:"userID,omitempty"`
	AnonID    string `json:"anonID,omitempty"`
	Status    string `json:"status"`
	Items     []Item `json:"items"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}
