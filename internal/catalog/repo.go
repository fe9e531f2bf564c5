package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
)

// Repo is the Postgres catalog store. Calls made with a context from
// postgres.TxRunner.RunInTx join that transaction.
type Repo struct{ DB postgres.DBTX }

const productColumns = `id, seller_id, name, unit_price, stock, created_at, updated_at`

func (r *Repo) GetProduct(ctx context.Context, id string) (Product, error) {
	row := postgres.Conn(ctx, r.DB).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AdjustStock applies delta (negative = debit, positive = credit) under the
// product's row lock and returns the new stock. A debit that would drive the
// stock below zero is refused with a *ShortfallError and changes nothing.
func (r *Repo) AdjustStock(ctx context.Context, id string, delta int) (int, error) {
	db := postgres.Conn(ctx, r.DB)

	var stock int
	err := db.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// either the product is gone or the guard refused the debit
	if err := db.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return 0, err
	}
	return stock, &ShortfallError{ProductID: id, Requested: -delta, Available: stock}
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.UnitPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
