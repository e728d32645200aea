package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("orders: not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
)

// Repo reads and updates orders. Order rows are only ever inserted by the
// ledger's commit transaction; see ledger.PGStore.CommitAll.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, intent_id, payment_ref, buyer_id, seller_id, status, total_cents, tracking, label_url, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.IntentID, &o.PaymentRef, &o.BuyerID, &o.SellerID, &o.Status, &o.TotalCents, &o.Tracking, &o.LabelURL, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetByIntentID backs confirm-order idempotency: a retried confirm for a
// payment intent returns the order already committed for it.
func (r *Repo) GetByIntentID(ctx context.Context, intentID string) (Order, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE intent_id=$1`, intentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, color_id, size_id, variant_id, qty, price_cents
		FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Selector.ColorID, &it.Selector.SizeID, &it.Selector.VariantID, &it.Qty, &it.PriceCents); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// SetShipped records the bought label. Guarded on the current status so a
// replayed fulfillment event cannot regress a delivered order.
func (r *Repo) SetShipped(ctx context.Context, orderID, tracking, labelURL string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, tracking=$3, label_url=$4, updated_at=now()
		WHERE id=$1 AND status=$5`,
		orderID, StatusShipped, tracking, labelURL, StatusPaid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s not in %s", ErrInvalidTransition, orderID, StatusPaid)
	}
	return nil
}
