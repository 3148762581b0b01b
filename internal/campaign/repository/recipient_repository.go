package repository

import (
	"time"

	"outreach-backend/internal/campaign/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The store caps batched writes, so audience inserts go out in chunks.
const insertBatchSize = 400

// recipientRepository implements RecipientRepository using GORM
type recipientRepository struct {
	db *gorm.DB
}

// NewRecipientRepository creates a new GORM-based RecipientRepository
func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

func (r *recipientRepository) CreateBatch(recipients []*domain.Recipient) error {
	now := time.Now()
	for _, recipient := range recipients {
		if recipient.ID == "" {
			recipient.ID = uuid.New().String()
		}
		if recipient.TrackingToken == "" {
			recipient.TrackingToken = uuid.New().String()
		}
		recipient.CreatedAt = now
		recipient.UpdatedAt = now
	}
	return r.db.CreateInBatches(recipients, insertBatchSize).Error
}

func (r *recipientRepository) FindByID(id string) (*domain.Recipient, error) {
	var recipient domain.Recipient
	err := r.db.Where("id = ?", id).First(&recipient).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &recipient, nil
}

func (r *recipientRepository) FindByCampaign(campaignID string) ([]*domain.Recipient, error) {
	var recipients []*domain.Recipient
	err := r.db.Where("campaign_id = ?", campaignID).Order("created_at ASC").Find(&recipients).Error
	return recipients, err
}

func (r *recipientRepository) FindDue(campaignIDs []string, now time.Time, limit int) ([]*domain.Recipient, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	var recipients []*domain.Recipient
	query := r.db.Where("campaign_id IN ? AND status = ? AND scheduled_for <= ?",
		campaignIDs, domain.RecipientStatusPending, now).
		Order("scheduled_for ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&recipients).Error
	return recipients, err
}

func (r *recipientRepository) FindByTrackingToken(token string) (*domain.Recipient, error) {
	var recipient domain.Recipient
	err := r.db.Where("tracking_token = ?", token).First(&recipient).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &recipient, nil
}

func (r *recipientRepository) UpdateFields(id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.Model(&domain.Recipient{}).Where("id = ?", id).Updates(fields).Error
}

func (r *recipientRepository) UpdateWithLock(id string, mutate func(rec *domain.Recipient) (map[string]interface{}, error)) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var recipient domain.Recipient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&recipient).Error; err != nil {
			return err
		}
		fields, err := mutate(&recipient)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		fields["updated_at"] = time.Now()
		return tx.Model(&domain.Recipient{}).Where("id = ?", id).Updates(fields).Error
	})
}

func (r *recipientRepository) DecrementFollowupsPending(id string) error {
	return r.db.Model(&domain.Recipient{}).
		Where("id = ? AND followups_pending > 0", id).
		Updates(map[string]interface{}{
			"followups_pending": gorm.Expr("followups_pending - 1"),
			"updated_at":        time.Now(),
		}).Error
}

func (r *recipientRepository) ResetForRetry(id string, scheduledFor time.Time) error {
	// Explicit failed -> pending transition. Clears the retry bookkeeping as
	// one atomic update; the error history stays for audit.
	return r.db.Model(&domain.Recipient{}).
		Where("id = ? AND status = ?", id, domain.RecipientStatusFailed).
		Updates(map[string]interface{}{
			"status":        domain.RecipientStatusPending,
			"scheduled_for": scheduledFor,
			"retry_count":   0,
			"last_error":    "",
			"can_retry":     true,
			"sent_at":       nil,
			"delivered_at":  nil,
			"updated_at":    time.Now(),
		}).Error
}
