package cart

import (
	"database/sql"
	"encoding/json"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindOpen(owner Owner) (Cart, error) {
	if !owner.Valid() {
		return Cart{}, ErrInvalidOwner
	}

	query := `SELECT "cartID", COALESCE("userID", 0), COALESCE("anonID", ''), status, items, COALESCE("createdAt", ''), COALESCE("updatedAt", '')
		FROM carts
		WHERE status = 'open' AND ` + ownerClause(owner)

	var ct Cart
	var itemsJSON []byte
	err := r.db.QueryRow(query, ownerArg(owner)).Scan(
		&ct.CartID, &ct.UserID, &ct.AnonID, &ct.Status, &itemsJSON, &ct.CreatedAt, &ct.UpdatedAt)
	if err == sql.ErrNoRows {
		return Cart{}, ErrNoOpenCart
	}
	if err != nil {
		return Cart{}, err
	}
	if err := json.Unmarshal(itemsJSON, &ct.Items); err != nil {
		return Cart{}, err
	}
	return ct, nil
}

func (r *PostgresRepository) CloseOpen(q Execer, owner Owner, updatedAt string) (bool, error) {
	if !owner.Valid() {
		return false, ErrInvalidOwner
	}

	query := `UPDATE carts SET status = 'closed', "updatedAt" = $2 WHERE status = 'open' AND ` + ownerClause(owner)
	res, err := q.Exec(query, ownerArg(owner), updatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func ownerClause(owner Owner) string {
	if owner.UserID > 0 {
		return `"userID" = $1`
	}
	return `"anonID" = $1`
}

func ownerArg(owner Owner) interface{} {
	if owner.UserID > 0 {
		return owner.UserID
	}
	return owner.AnonID
}
