package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

const (
	getProductByCodeSQL = `SELECT code, name, unit_price FROM products WHERE code = $1`

	// A taken code returns no row.
	insertProductSQL = `INSERT INTO products (code, name, unit_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
		RETURNING code, name, unit_price`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByCode returns a single product by its scan code.
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", code, err)
	}
	return &p, nil
}

// Create inserts p. It returns product.ErrAlreadyExists when the code is
// taken, leaving the stored record untouched.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, insertProductSQL, p.Code, p.Name, p.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("creating product %q: %w", p.Code, err)
	}

	created, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating product %q: %w", p.Code, err)
	}
	return &created, nil
}

// InsertMany creates every product whose code is not yet taken and reports
// how many rows were inserted. Existing records are never overwritten.
func (r *ProductRepository) InsertMany(ctx context.Context, products []product.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(insertProductSQL, p.Code, p.Name, p.UnitPrice)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for _, p := range products {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting product %q: %w", p.Code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.Code, &p.Name, &price)
	p.UnitPrice = price
	return p, err
}
