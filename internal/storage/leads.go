package storage

import (
	"context"

	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
	"github.com/md-rashed-zaman/frontdesk/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

type LeadRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewLeadRepository(pool *db.Pool, outboxRepo *outbox.Repository) *LeadRepository {
	return &LeadRepository{pool: pool, outbox: outboxRepo}
}

func (r *LeadRepository) Create(ctx context.Context, lead *model.Lead) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO leads (id, name, email, phone, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, lead.ID, lead.Name, lead.Email, lead.Phone, lead.Status).Scan(&id)
	if err != nil {
		return "", err
	}

	evt, err := changeEvent(changefeed.CollectionLeads, changefeed.OpInsert, id)
	if err != nil {
		return "", err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return "", err
	}
	return id, tx.Commit(ctx)
}

func (r *LeadRepository) Get(ctx context.Context, id string) (model.Lead, bool, error) {
	var lead model.Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), status, created_at
		FROM leads
		WHERE id = $1
	`, id).Scan(&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Status, &lead.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Lead{}, false, nil
		}
		return model.Lead{}, false, err
	}
	return lead, true, nil
}
