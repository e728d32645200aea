package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("catalog: product not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, seller_id, name, description, price_cents, weight_oz, stock, archived, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.PriceCents, &p.WeightOz, &p.Stock, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `SELECT id, name, stock, archived FROM product_colors WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c Color
		if err := rows.Scan(&c.ID, &c.Name, &c.Stock, &c.Archived); err != nil {
			rows.Close()
			return nil, err
		}
		p.Colors = append(p.Colors, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.DB.Query(ctx, `SELECT id, name, stock, archived FROM product_sizes WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var s Size
		if err := rows.Scan(&s.ID, &s.Name, &s.Stock, &s.Archived); err != nil {
			rows.Close()
			return nil, err
		}
		p.Sizes = append(p.Sizes, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.DB.Query(ctx, `SELECT id, COALESCE(color_id::text,''), COALESCE(size_id::text,''), stock, archived
	                             FROM product_variants WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ColorID, &v.SizeID, &v.Stock, &v.Archived); err != nil {
			rows.Close()
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

// ListBySeller returns live products only; archived ones stay for order history.
func (r *Repo) ListBySeller(ctx context.Context, sellerID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, seller_id, name, description, price_cents, weight_oz, stock, archived, created_at, updated_at
		FROM products WHERE seller_id=$1 AND NOT archived ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.PriceCents, &p.WeightOz, &p.Stock, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type CreateProductInput struct {
	SellerID    string  `json:"seller_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceCents  int     `json:"price_cents"`
	WeightOz    float64 `json:"weight_oz"`
	Stock       int     `json:"quantity_in_stock"`
}

// Create inserts a product with product-level stock, the shape the voice
// assistant produces. Axes are added later through the seller dashboard.
func (r *Repo) Create(ctx context.Context, in CreateProductInput) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, name, description, price_cents, weight_oz, stock, archived, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,$8)`,
		id, in.SellerID, in.Name, in.Description, in.PriceCents, in.WeightOz, in.Stock, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) PriceCents(ctx context.Context, productID string) (int, error) {
	var price int
	err := r.DB.QueryRow(ctx, `SELECT price_cents FROM products WHERE id=$1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return price, err
}

// ArchiveVariant hides a variant from selection without touching order history.
func (r *Repo) ArchiveVariant(ctx context.Context, variantID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE product_variants SET archived=TRUE WHERE id=$1`, variantID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
