package repository

import (
	"time"

	"outreach-backend/internal/tracking/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedMessageRepository deduplicates inbound messages across polling runs.
type ProcessedMessageRepository interface {
	// IsProcessed reports whether the message was handled on an earlier run.
	IsProcessed(clientID, messageKey string) (bool, error)
	// EnsureProcessed records the message/recipient pair if it is new.
	// Returns true when the pair had already been processed. Callers mark a
	// message processed only after its reply has been durably recorded, so a
	// failed recording is retried on the next poll.
	EnsureProcessed(clientID, messageKey, recipientID string) (bool, error)
}

// processedMessageRepository implements ProcessedMessageRepository using GORM
type processedMessageRepository struct {
	db *gorm.DB
}

// NewProcessedMessageRepository creates a new GORM-based ProcessedMessageRepository
func NewProcessedMessageRepository(db *gorm.DB) ProcessedMessageRepository {
	return &processedMessageRepository{db: db}
}

func (r *processedMessageRepository) IsProcessed(clientID, messageKey string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.ProcessedMessage{}).
		Where("client_id = ? AND message_key = ?", clientID, messageKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *processedMessageRepository) EnsureProcessed(clientID, messageKey, recipientID string) (bool, error) {
	var record domain.ProcessedMessage

	// FirstOrCreate checks and inserts in one query; RowsAffected == 0 means
	// the message was seen on an earlier run.
	now := time.Now()
	result := r.db.Where("client_id = ? AND message_key = ? AND recipient_id = ?", clientID, messageKey, recipientID).
		FirstOrCreate(&record, domain.ProcessedMessage{
			ID:          uuid.New().String(),
			ClientID:    clientID,
			MessageKey:  messageKey,
			RecipientID: recipientID,
			ProcessedAt: now,
			CreatedAt:   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}
