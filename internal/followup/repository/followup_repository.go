package repository

import (
	"time"

	"outreach-backend/internal/followup/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowupRepository persists follow-up emails.
type FollowupRepository interface {
	Create(f *domain.FollowupEmail) error
	FindByID(id string) (*domain.FollowupEmail, error)
	// FindDue returns scheduled or queued follow-ups whose send time passed.
	FindDue(now time.Time, limit int) ([]*domain.FollowupEmail, error)
	FindByRecipient(recipientID string) ([]*domain.FollowupEmail, error)
	FindByTrackingToken(token string) (*domain.FollowupEmail, error)
	UpdateFields(id string, fields map[string]interface{}) error
	// UpdateWithLock re-reads the follow-up under a row lock and applies the
	// fields mutate returns in the same transaction. Writers of the tracking
	// JSON column (open tracker, reply matcher) go through this so a
	// concurrent open and reply lose neither update.
	UpdateWithLock(id string, mutate func(f *domain.FollowupEmail) (map[string]interface{}, error)) error
}

// followupRepository implements FollowupRepository using GORM
type followupRepository struct {
	db *gorm.DB
}

// NewFollowupRepository creates a new GORM-based FollowupRepository
func NewFollowupRepository(db *gorm.DB) FollowupRepository {
	return &followupRepository{db: db}
}

func (r *followupRepository) Create(f *domain.FollowupEmail) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.TrackingToken == "" {
		f.TrackingToken = uuid.New().String()
	}
	f.CreatedAt = time.Now()
	f.UpdatedAt = time.Now()
	return r.db.Create(f).Error
}

func (r *followupRepository) FindByID(id string) (*domain.FollowupEmail, error) {
	var followup domain.FollowupEmail
	err := r.db.Where("id = ?", id).First(&followup).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &followup, nil
}

func (r *followupRepository) FindDue(now time.Time, limit int) ([]*domain.FollowupEmail, error) {
	var followups []*domain.FollowupEmail
	query := r.db.Where("status IN ? AND scheduled_for <= ?",
		[]domain.FollowupStatus{domain.FollowupStatusScheduled, domain.FollowupStatusQueued}, now).
		Order("scheduled_for ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&followups).Error
	return followups, err
}

func (r *followupRepository) FindByRecipient(recipientID string) ([]*domain.FollowupEmail, error) {
	var followups []*domain.FollowupEmail
	err := r.db.Where("recipient_id = ?", recipientID).Order("created_at DESC").Find(&followups).Error
	return followups, err
}

func (r *followupRepository) FindByTrackingToken(token string) (*domain.FollowupEmail, error) {
	var followup domain.FollowupEmail
	err := r.db.Where("tracking_token = ?", token).First(&followup).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &followup, nil
}

func (r *followupRepository) UpdateFields(id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.Model(&domain.FollowupEmail{}).Where("id = ?", id).Updates(fields).Error
}

func (r *followupRepository) UpdateWithLock(id string, mutate func(f *domain.FollowupEmail) (map[string]interface{}, error)) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var followup domain.FollowupEmail
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&followup).Error; err != nil {
			return err
		}
		fields, err := mutate(&followup)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		fields["updated_at"] = time.Now()
		return tx.Model(&domain.FollowupEmail{}).Where("id = ?", id).Updates(fields).Error
	})
}
