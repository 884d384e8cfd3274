package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
	"github.com/md-rashed-zaman/frontdesk/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

type PaymentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPaymentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *PaymentRepository {
	return &PaymentRepository{pool: pool, outbox: outboxRepo}
}

// MarkOverdueFromInvoice upserts a payment record keyed by the provider's
// invoice id and flags it overdue. Reconciliation runs repeatedly, so the
// change event is only written when a row actually changed.
func (r *PaymentRepository) MarkOverdueFromInvoice(ctx context.Context, invoiceID, customerRef string, amountCents int64, dueDate time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (id, external_id, lead_ref, amount_due, status, due_date)
		VALUES ($1, $2, $3, $4, 'overdue', $5)
		ON CONFLICT (external_id)
		DO UPDATE SET status = 'overdue',
		              amount_due = EXCLUDED.amount_due,
		              due_date = EXCLUDED.due_date,
		              updated_at = now()
		WHERE payments.status IS DISTINCT FROM 'overdue'
		RETURNING id
	`, uuid.NewString(), invoiceID, customerRef, amountCents, dueDate).Scan(&id)
	if err != nil {
		if IsNotFound(err) {
			// Already overdue; nothing changed.
			return nil
		}
		return err
	}

	evt, err := changeEvent(changefeed.CollectionPayments, changefeed.OpUpdate, id)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
