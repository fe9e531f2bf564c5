package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

// Repo is the Postgres order store. Calls made with a context from
// postgres.TxRunner.RunInTx join that transaction.
type Repo struct{ DB postgres.DBTX }

const (
	orderColumns = `id, COALESCE(external_id, ''), buyer_id, contact_email, contact_phone,
		status, total_amount, created_at, updated_at`
	itemColumns = `id, order_id, product_id, product_name, unit_price, seller_id, quantity`

	externalIDConstraint = "orders_buyer_id_external_id_key"
)

func (r *Repo) InsertOrder(ctx context.Context, o Order) error {
	db := postgres.Conn(ctx, r.DB)

	_, err := db.Exec(ctx, `
		INSERT INTO orders(id, external_id, buyer_id, contact_email, contact_phone,
		                   status, total_amount, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.ExternalID, o.BuyerID, o.ContactEmail, o.ContactPhone,
		string(o.Status), o.TotalAmount, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, externalIDConstraint) {
			return errDuplicateExternalID
		}
		return err
	}

	for pos, it := range o.Items {
		_, err = db.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, unit_price, seller_id, quantity, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.UnitPrice, it.SellerID, it.Quantity, pos,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return r.fetch(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
}

// LockOrder loads the aggregate under a row lock held until the transaction ends.
func (r *Repo) LockOrder(ctx context.Context, orderID string) (Order, error) {
	return r.fetch(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID)
}

func (r *Repo) FindByExternalID(ctx context.Context, buyerID, externalID string) (Order, error) {
	return r.fetch(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 AND external_id=$2`, buyerID, externalID)
}

func (r *Repo) UpdateItemQuantity(ctx context.Context, orderID, itemID string, qty int) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx,
		`UPDATE order_items SET quantity=$3 WHERE order_id=$1 AND id=$2`, orderID, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return nil
}

func (r *Repo) DeleteItem(ctx context.Context, orderID, itemID string) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx,
		`DELETE FROM order_items WHERE order_id=$1 AND id=$2`, orderID, itemID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return nil
}

// DeleteOrder removes the aggregate; items go with it (ON DELETE CASCADE).
func (r *Repo) DeleteOrder(ctx context.Context, orderID string) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return nil
}

// UpdateOrder persists the mutable header fields: status, total and updated_at.
func (r *Repo) UpdateOrder(ctx context.Context, o Order) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx,
		`UPDATE orders SET status=$2, total_amount=$3, updated_at=$4 WHERE id=$1`,
		o.ID, string(o.Status), o.TotalAmount, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	return nil
}

func (r *Repo) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id=$1
		ORDER BY created_at DESC, id DESC`, buyerID)
}

// ListBySeller returns every order holding at least one line of the seller.
func (r *Repo) ListBySeller(ctx context.Context, sellerID string) ([]Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders o
		WHERE EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.seller_id = $1)
		ORDER BY created_at DESC, id DESC`, sellerID)
}

func (r *Repo) fetch(ctx context.Context, query string, args ...any) (Order, error) {
	db := postgres.Conn(ctx, r.DB)

	o, err := scanOrder(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}

	items, err := loadItems(ctx, db, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *Repo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	db := postgres.Conn(ctx, r.DB)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Order{}, nil
	}

	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	items, err := loadItems(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func loadItems(ctx context.Context, db postgres.DBTX, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := db.Query(ctx, `
		SELECT `+itemColumns+` FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.UnitPrice, &it.SellerID, &it.Quantity); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.ExternalID, &o.BuyerID, &o.ContactEmail, &o.ContactPhone,
		&status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}
