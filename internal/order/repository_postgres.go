package order

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/wichananm65/pet-shop-payment/internal/cart"
)

// PostgresRepository persists orders and performs the locked
// compare-and-swap payment transitions. It holds the cart coordinator so
// the cart closure commits in the same transaction as the Paid
// transition.
type PostgresRepository struct {
	db    *sql.DB
	carts cart.Coordinator
}

func NewPostgresRepository(db *sql.DB, carts cart.Coordinator) *PostgresRepository {
	return &PostgresRepository{db: db, carts: carts}
}

const orderColumns = `"orderID", COALESCE("userID", 0), COALESCE("anonID", ''), "contactName", "contactPhone", COALESCE("contactEmail", ''), "contactAddress", "totalAmount", "orderStatus", COALESCE("paymentMethod", ''), "paymentStatus", COALESCE("transactionId", ''), COALESCE("paymentDate", ''), COALESCE("createdAt", ''), COALESCE("updatedAt", '')`

func (r *PostgresRepository) Create(ord Order) (Order, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO orders ("orderID", "userID", "anonID", "contactName", "contactPhone", "contactEmail", "contactAddress", "totalAmount", "orderStatus", "paymentMethod", "paymentStatus", "createdAt", "updatedAt")
		VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ord.OrderID, ord.UserID, ord.AnonID,
		ord.Contact.Name, ord.Contact.Phone, ord.Contact.Email, ord.Contact.Address,
		ord.TotalAmount, string(ord.OrderStatus), ord.PaymentMethod, string(ord.PaymentStatus),
		ord.CreatedAt, ord.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	for i, item := range ord.Items {
		if _, err := tx.Exec(`INSERT INTO order_items ("orderID", "productID", quantity, "unitPrice", ord)
			VALUES ($1, $2, $3, $4, $5)`,
			ord.OrderID, item.ProductID, item.Quantity, item.UnitPrice, i); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, err
	}
	return ord, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var ord Order
	var orderStatus, paymentStatus string
	err := row.Scan(&ord.OrderID, &ord.UserID, &ord.AnonID,
		&ord.Contact.Name, &ord.Contact.Phone, &ord.Contact.Email, &ord.Contact.Address,
		&ord.TotalAmount, &orderStatus, &ord.PaymentMethod, &paymentStatus,
		&ord.TransactionID, &ord.PaymentDate, &ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	ord.OrderStatus = OrderStatus(orderStatus)
	ord.PaymentStatus = PaymentStatus(paymentStatus)
	return ord, nil
}

func (r *PostgresRepository) GetByID(id string) (Order, error) {
	row := r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE "orderID" = $1`, id)
	ord, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	items, err := r.itemsFor([]string{id})
	if err != nil {
		return Order{}, err
	}
	ord.Items = items[id]
	if ord.Items == nil {
		ord.Items = []Item{}
	}
	return ord, nil
}

// ListByOwner returns the owner's orders newest first.
func (r *PostgresRepository) ListByOwner(owner cart.Owner) ([]Order, error) {
	if !owner.Valid() {
		return []Order{}, nil
	}

	clause := `"userID" = $1`
	arg := interface{}(owner.UserID)
	if owner.UserID <= 0 {
		clause = `"anonID" = $1`
		arg = owner.AnonID
	}

	rows, err := r.db.Query(`SELECT `+orderColumns+` FROM orders WHERE `+clause+` ORDER BY "createdAt" DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		ord.Items = []Item{}
		orders = append(orders, ord)
		ids = append(ids, ord.OrderID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.itemsFor(ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if its, ok := items[orders[i].OrderID]; ok {
			orders[i].Items = its
		}
	}
	return orders, nil
}

// itemsFor fetches the line items of several orders in one query, keyed
// by order id and kept in insertion order.
func (r *PostgresRepository) itemsFor(ids []string) (map[string][]Item, error) {
	out := make(map[string][]Item)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(`SELECT "orderID", "productID", quantity, "unitPrice"
		FROM order_items
		WHERE "orderID" = ANY($1::text[])
		ORDER BY "orderID", ord`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var item Item
		if err := rows.Scan(&id, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		out[id] = append(out[id], item)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkPaid(id, transactionID, method, paymentDate, updatedAt string) (Order, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return Order{}, false, err
	}
	defer tx.Rollback()

	// lock the row so concurrent callback deliveries serialize here
	row := tx.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE "orderID" = $1 FOR UPDATE`, id)
	ord, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, false, ErrNotFound
	}
	if err != nil {
		return Order{}, false, err
	}

	if ord.PaymentStatus != PaymentPending {
		tx.Rollback()
		snap, err := r.GetByID(id)
		return snap, false, err
	}

	// payment settles the order only when it is still waiting for it; a
	// status staff already advanced stays where they put it
	next := ord.OrderStatus
	if next == StatusAwaitPay {
		next = StatusPending
	}

	if _, err := tx.Exec(`UPDATE orders
		SET "paymentStatus" = 'Paid', "orderStatus" = $6, "paymentMethod" = $2, "transactionId" = $3, "paymentDate" = $4, "updatedAt" = $5
		WHERE "orderID" = $1 AND "paymentStatus" = 'Pending'`,
		id, method, transactionID, paymentDate, updatedAt, string(next)); err != nil {
		return Order{}, false, err
	}

	owner := cart.Owner{UserID: ord.UserID, AnonID: ord.AnonID}
	if _, err := r.carts.CloseOpen(tx, owner, updatedAt); err != nil {
		return Order{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return Order{}, false, err
	}

	ord.PaymentStatus = PaymentPaid
	ord.OrderStatus = next
	ord.PaymentMethod = method
	ord.TransactionID = transactionID
	ord.PaymentDate = paymentDate
	ord.UpdatedAt = updatedAt
	return r.withItems(ord)
}

func (r *PostgresRepository) MarkFailed(id, updatedAt string) (Order, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return Order{}, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE "orderID" = $1 FOR UPDATE`, id)
	ord, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, false, ErrNotFound
	}
	if err != nil {
		return Order{}, false, err
	}

	if ord.PaymentStatus != PaymentPending {
		tx.Rollback()
		snap, err := r.GetByID(id)
		return snap, false, err
	}

	// a failed payment cancels the order, but never off a terminal or
	// error status
	next := ord.OrderStatus
	switch next {
	case StatusAwaitPay, StatusPending, StatusProcessing:
		next = StatusCancelled
	}

	if _, err := tx.Exec(`UPDATE orders
		SET "paymentStatus" = 'Failed', "orderStatus" = $3, "updatedAt" = $2
		WHERE "orderID" = $1 AND "paymentStatus" = 'Pending'`,
		id, updatedAt, string(next)); err != nil {
		return Order{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return Order{}, false, err
	}

	ord.PaymentStatus = PaymentFailed
	ord.OrderStatus = next
	ord.UpdatedAt = updatedAt
	return r.withItems(ord)
}

func (r *PostgresRepository) SetOrderStatus(id string, status OrderStatus, updatedAt string) (Order, error) {
	res, err := r.db.Exec(`UPDATE orders SET "orderStatus" = $2, "updatedAt" = $3 WHERE "orderID" = $1`,
		id, string(status), updatedAt)
	if err != nil {
		return Order{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Order{}, err
	} else if n == 0 {
		return Order{}, ErrNotFound
	}
	return r.GetByID(id)
}

func (r *PostgresRepository) SetPaymentStatus(id string, status PaymentStatus, updatedAt string) (Order, error) {
	res, err := r.db.Exec(`UPDATE orders SET "paymentStatus" = $2, "updatedAt" = $3 WHERE "orderID" = $1`,
		id, string(status), updatedAt)
	if err != nil {
		return Order{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Order{}, err
	} else if n == 0 {
		return Order{}, ErrNotFound
	}
	return r.GetByID(id)
}

func (r *PostgresRepository) withItems(ord Order) (Order, bool, error) {
	items, err := r.itemsFor([]string{ord.OrderID})
	if err != nil {
		return Order{}, false, err
	}
	ord.Items = items[ord.OrderID]
	if ord.Items == nil {
		ord.Items = []Item{}
	}
	return ord, true, nil
}
