package repository

import (
	"time"

	"outreach-backend/internal/tracking/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplyRepository persists reply audit records.
type ReplyRepository interface {
	Create(reply *domain.Reply) error
	FindByCampaign(campaignID string) ([]*domain.Reply, error)
}

// replyRepository implements ReplyRepository using GORM
type replyRepository struct {
	db *gorm.DB
}

// NewReplyRepository creates a new GORM-based ReplyRepository
func NewReplyRepository(db *gorm.DB) ReplyRepository {
	return &replyRepository{db: db}
}

func (r *replyRepository) Create(reply *domain.Reply) error {
	if reply.ID == "" {
		reply.ID = uuid.New().String()
	}
	reply.CreatedAt = time.Now()
	return r.db.Create(reply).Error
}

func (r *replyRepository) FindByCampaign(campaignID string) ([]*domain.Reply, error) {
	var replies []*domain.Reply
	err := r.db.Where("campaign_id = ?", campaignID).Order("received_at DESC").Find(&replies).Error
	return replies, err
}
