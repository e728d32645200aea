package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/orders"
)

// PGStore serializes concurrent holds per product with a row lock on the
// products row; every check-and-write below happens inside one transaction.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Reserve(ctx context.Context, r Reservation) (Reservation, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback(ctx)

	p, err := lockProduct(ctx, tx, r.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	sel, err := catalog.NormalizeSelector(p, r.Selector)
	if err != nil {
		return Reservation{}, err
	}
	r.Selector = sel
	stock, err := catalog.AuthoritativeStock(p, sel)
	if err != nil {
		return Reservation{}, err
	}

	// Prior hold for the same cart item is replaced, not stacked, so its qty
	// must not count against the holder's own new request.
	var priorID string
	var priorState State
	err = tx.QueryRow(ctx, `
		SELECT id, state FROM reservations WHERE holder_id=$1 AND cart_item_id=$2 FOR UPDATE`,
		r.HolderID, r.CartItemID).Scan(&priorID, &priorState)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, err
	}
	if priorState == StateCommitted {
		return Reservation{}, ErrConflict
	}

	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0) FROM reservations
		WHERE product_id=$1 AND color_id=$2 AND size_id=$3 AND variant_id=$4
		  AND state='active' AND expires_at > now()
		  AND id::text <> $5`,
		r.ProductID, sel.ColorID, sel.SizeID, sel.VariantID, priorID).Scan(&reserved)
	if err != nil {
		return Reservation{}, err
	}
	if catalog.Availability(stock, reserved) < r.Qty {
		return Reservation{}, fmt.Errorf("%w: product %s", ErrOutOfStock, r.ProductID)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.State = StateActive
	err = tx.QueryRow(ctx, `
		INSERT INTO reservations(id, holder_id, cart_item_id, product_id, color_id, size_id, variant_id, qty, state, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'active',$9,$10)
		ON CONFLICT (holder_id, cart_item_id) DO UPDATE SET
			product_id=EXCLUDED.product_id,
			color_id=EXCLUDED.color_id,
			size_id=EXCLUDED.size_id,
			variant_id=EXCLUDED.variant_id,
			qty=EXCLUDED.qty,
			state='active',
			created_at=EXCLUDED.created_at,
			expires_at=EXCLUDED.expires_at
		RETURNING id`,
		r.ID, r.HolderID, r.CartItemID, r.ProductID, sel.ColorID, sel.SizeID, sel.VariantID, r.Qty, r.CreatedAt, r.ExpiresAt).Scan(&r.ID)
	if err != nil {
		return Reservation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Reservation, error) {
	var r Reservation
	err := s.DB.QueryRow(ctx, `
		SELECT id, holder_id, cart_item_id, product_id, color_id, size_id, variant_id, qty, state, created_at, expires_at
		FROM reservations WHERE id=$1`, id).
		Scan(&r.ID, &r.HolderID, &r.CartItemID, &r.ProductID, &r.Selector.ColorID, &r.Selector.SizeID, &r.Selector.VariantID, &r.Qty, &r.State, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}
	return r, nil
}

func (s *PGStore) Touch(ctx context.Context, id string, until time.Time) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reservations SET expires_at=$2
		WHERE id=$1 AND state='active' AND expires_at > now()`, id, until)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.State != StateActive {
		return ErrConflict
	}
	return ErrReservationExpired
}

func (s *PGStore) Release(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE reservations SET state='released' WHERE id=$1 AND state='active'`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// Idempotent: a hold that is already released or committed stays put.
	_, err = s.Get(ctx, id)
	return err
}

func (s *PGStore) CommitAll(ctx context.Context, reservationIDs []string, skeleton orders.Order) (orders.Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, err
	}
	defer tx.Rollback(ctx)

	o := skeleton
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	for _, id := range reservationIDs {
		var r Reservation
		err := tx.QueryRow(ctx, `
			SELECT id, product_id, color_id, size_id, variant_id, qty, state, expires_at
			FROM reservations WHERE id=$1 FOR UPDATE`, id).
			Scan(&r.ID, &r.ProductID, &r.Selector.ColorID, &r.Selector.SizeID, &r.Selector.VariantID, &r.Qty, &r.State, &r.ExpiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return orders.Order{}, err
		}
		switch {
		case r.State == StateCommitted:
			return orders.Order{}, fmt.Errorf("%w: %s", ErrConflict, id)
		case !r.Live(now):
			return orders.Order{}, fmt.Errorf("%w: %s", ErrReservationExpired, id)
		}

		// Price is read inside the commit transaction: the order locks the
		// price as of commit, not as of reserve.
		var price int
		if err := tx.QueryRow(ctx, `SELECT price_cents FROM products WHERE id=$1 FOR UPDATE`, r.ProductID).Scan(&price); err != nil {
			return orders.Order{}, err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE reservations SET state='committed' WHERE id=$1 AND state='active'`, r.ID)
		if err != nil {
			return orders.Order{}, err
		}
		if ct.RowsAffected() != 1 {
			return orders.Order{}, fmt.Errorf("%w: %s", ErrConflict, r.ID)
		}
		if err := deductStockTx(ctx, tx, r); err != nil {
			return orders.Order{}, err
		}

		o.Items = append(o.Items, orders.Item{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  r.ProductID,
			Selector:   r.Selector,
			Qty:        r.Qty,
			PriceCents: price,
		})
		o.TotalCents += price * r.Qty
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, intent_id, payment_ref, buyer_id, seller_id, status, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		o.ID, o.IntentID, o.PaymentRef, o.BuyerID, o.SellerID, o.Status, o.TotalCents, now); err != nil {
		return orders.Order{}, err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, color_id, size_id, variant_id, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.OrderID, it.ProductID, it.Selector.ColorID, it.Selector.SizeID, it.Selector.VariantID, it.Qty, it.PriceCents); err != nil {
			return orders.Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// deductStockTx turns the committed hold into a permanent deduction on its
// bucket. The deduction floors at zero: an admin correction below the held
// qty does not fail a commit whose stock was claimed at reserve time.
func deductStockTx(ctx context.Context, tx pgx.Tx, r Reservation) error {
	switch {
	case r.Selector.VariantID != "":
		_, err := tx.Exec(ctx, `UPDATE product_variants SET stock=GREATEST(stock-$2,0) WHERE id=$1::uuid`, r.Selector.VariantID, r.Qty)
		return err
	case r.Selector.ColorID != "":
		_, err := tx.Exec(ctx, `UPDATE product_colors SET stock=GREATEST(stock-$2,0) WHERE id=$1::uuid`, r.Selector.ColorID, r.Qty)
		return err
	case r.Selector.SizeID != "":
		_, err := tx.Exec(ctx, `UPDATE product_sizes SET stock=GREATEST(stock-$2,0) WHERE id=$1::uuid`, r.Selector.SizeID, r.Qty)
		return err
	default:
		_, err := tx.Exec(ctx, `UPDATE products SET stock=GREATEST(stock-$2,0), updated_at=now() WHERE id=$1`, r.ProductID, r.Qty)
		return err
	}
}

func (s *PGStore) ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE reservations SET state='released'
		WHERE state='active' AND expires_at <= $1
		RETURNING id, holder_id, cart_item_id, product_id, color_id, size_id, variant_id, qty, state, created_at, expires_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.HolderID, &r.CartItemID, &r.ProductID, &r.Selector.ColorID, &r.Selector.SizeID, &r.Selector.VariantID, &r.Qty, &r.State, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Availability(ctx context.Context, productID string, sel catalog.Selector) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	p, err := loadProduct(ctx, tx, productID, false)
	if err != nil {
		return 0, err
	}
	nsel, err := catalog.NormalizeSelector(p, sel)
	if err != nil {
		return 0, err
	}
	stock, err := catalog.AuthoritativeStock(p, nsel)
	if err != nil {
		return 0, err
	}
	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0) FROM reservations
		WHERE product_id=$1 AND color_id=$2 AND size_id=$3 AND variant_id=$4
		  AND state='active' AND expires_at > now()`,
		productID, nsel.ColorID, nsel.SizeID, nsel.VariantID).Scan(&reserved)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return catalog.Availability(stock, reserved), nil
}

func lockProduct(ctx context.Context, tx pgx.Tx, id string) (*catalog.Product, error) {
	return loadProduct(ctx, tx, id, true)
}

// loadProduct pulls the stock-relevant slice of a product inside the
// transaction; forUpdate takes the row lock that serializes Reserve.
func loadProduct(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*catalog.Product, error) {
	q := `SELECT id, price_cents, stock, archived FROM products WHERE id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var p catalog.Product
	err := tx.QueryRow(ctx, q, id).Scan(&p.ID, &p.PriceCents, &p.Stock, &p.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT id, stock, archived FROM product_colors WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c catalog.Color
		if err := rows.Scan(&c.ID, &c.Stock, &c.Archived); err != nil {
			rows.Close()
			return nil, err
		}
		p.Colors = append(p.Colors, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT id, stock, archived FROM product_sizes WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sz catalog.Size
		if err := rows.Scan(&sz.ID, &sz.Stock, &sz.Archived); err != nil {
			rows.Close()
			return nil, err
		}
		p.Sizes = append(p.Sizes, sz)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT id, COALESCE(color_id::text,''), COALESCE(size_id::text,''), stock, archived
	                           FROM product_variants WHERE product_id=$1`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v catalog.Variant
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
