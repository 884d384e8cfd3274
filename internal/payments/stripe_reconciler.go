package payments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/storage"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
	"github.com/stripe/stripe-go/v79"
	stripeinvoice "github.com/stripe/stripe-go/v79/invoice"
)

// StripeReconciler pulls past-due invoices from Stripe into the payments
// collection, which feeds the console's overdue counter. Stripe is the
// source of truth for invoice lifecycle.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.PaymentRepository
	logger      *slog.Logger
	stripeKey   string
	advisoryKey int64
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.PaymentRepository, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		// Stable-ish default; override via env if multiple instances run.
		lockKey = 7301002
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		advisoryKey: lockKey,
	}
}

func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	// Best-effort leader election for multi-instance deployments.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !locked {
			r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			time.Sleep(30 * time.Second)
			continue
		}
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on startup to self-heal faster after downtime.
	r.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	now := time.Now().UTC()
	params := &stripe.InvoiceListParams{
		Status: stripe.String(string(stripe.InvoiceStatusOpen)),
	}
	params.Context = ctx

	flagged := 0
	it := stripeinvoice.List(params)
	for it.Next() {
		if ctx.Err() != nil {
			return
		}
		inv := it.Invoice()
		if inv.DueDate == 0 {
			continue
		}
		due := time.Unix(inv.DueDate, 0).UTC()
		if !due.Before(now) {
			continue
		}

		customerRef := ""
		if inv.Customer != nil {
			customerRef = inv.Customer.ID
		}
		if err := r.repo.MarkOverdueFromInvoice(ctx, inv.ID, customerRef, inv.AmountDue, due); err != nil {
			r.logger.Warn("stripe reconcile: failed to flag invoice", "err", err, "invoice_id", inv.ID)
			continue
		}
		flagged++
	}
	if err := it.Err(); err != nil {
		r.logger.Error("stripe reconcile: invoice list failed", "err", err)
		return
	}
	if flagged > 0 {
		r.logger.Info("stripe reconcile: flagged overdue invoices", "count", flagged)
	}
}
