package cart

import (
	"database/sql"
	"sync"
)

// Execer is satisfied by both *sql.DB and *sql.Tx, so CloseOpen can run
// inside the caller's transaction and commit together with the order
// transition.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Coordinator locates and closes the open cart of an owner. Line-item
// mutation lives in the main backend; this service only reads the priced
// cart at checkout and closes it when its order is paid.
type Coordinator interface {
	FindOpen(owner Owner) (Cart, error)
	// CloseOpen marks the owner's open cart closed using q, which may be
	// a transaction. Reports whether a cart was actually closed.
	CloseOpen(q Execer, owner Owner, updatedAt string) (bool, error)
}

// InMemoryRepository backs tests and local scenarios.
type InMemoryRepository struct {
	mu    sync.Mutex
	carts []Cart
}

func NewInMemoryRepository(seed []Cart) *InMemoryRepository {
	r := &InMemoryRepository{carts: make([]Cart, 0, len(seed))}
	r.carts = append(r.carts, seed...)
	return r
}

func (r *InMemoryRepository) FindOpen(owner Owner) (Cart, error) {
	if !owner.Valid() {
		return Cart{}, ErrInvalidOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ct := range r.carts {
		if ct.Status == StatusOpen && matches(ct, owner) {
			return ct, nil
		}
	}
	return Cart{}, ErrNoOpenCart
}

func (r *InMemoryRepository) CloseOpen(_ Execer, owner Owner, updatedAt string) (bool, error) {
	if !owner.Valid() {
		return false, ErrInvalidOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ct := range r.carts {
		if ct.Status == StatusOpen && matches(ct, owner) {
			ct.Status = StatusClosed
			if updatedAt != "" {
				ct.UpdatedAt = updatedAt
			}
			r.carts[i] = ct
			return true, nil
		}
	}
	return false, nil
}

// Closures counts closed carts, used by tests to assert a cart is never
// closed twice.
func (r *InMemoryRepository) Closures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ct := range r.carts {
		if ct.Status == StatusClosed {
			n++
		}
	}
	return n
}

func matches(ct Cart, owner Owner) bool {
	if owner.UserID > 0 {
		return ct.UserID == owner.UserID
	}
	return ct.AnonID == owner.AnonID
}
