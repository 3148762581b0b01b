package repository

import (
	"fmt"
	"time"

	"outreach-backend/internal/campaign/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// campaignRepository implements CampaignRepository using GORM
type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new GORM-based CampaignRepository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) Create(c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	return r.db.Create(c).Error
}

func (r *campaignRepository) FindByID(id string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *campaignRepository) FindByStatuses(statuses ...domain.CampaignStatus) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign
	err := r.db.Where("status IN ?", statuses).Order("created_at ASC").Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepository) UpdateStatus(id string, status domain.CampaignStatus) error {
	return r.db.Model(&domain.Campaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *campaignRepository) MarkCompleted(id string, at time.Time, from ...domain.CampaignStatus) (bool, error) {
	if len(from) == 0 {
		from = []domain.CampaignStatus{domain.CampaignStatusActive}
	}
	// Guarded by the current status so the transition fires exactly once and
	// never flips back.
	result := r.db.Model(&domain.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":       domain.CampaignStatusCompleted,
			"completed_at": at,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

var counterColumns = map[string]bool{
	CounterPending:            true,
	CounterSent:               true,
	CounterDelivered:          true,
	CounterOpened:             true,
	CounterReplied:            true,
	CounterFailed:             true,
	CounterDeliveredNotOpened: true,
	CounterOpenedNotReplied:   true,
	CounterFollowupsQueued:    true,
	CounterFollowupsSent:      true,
	CounterFollowupsOpened:    true,
	CounterFollowupsReplied:   true,
}

func (r *campaignRepository) IncrementCounters(id string, deltas map[string]int) error {
	if len(deltas) == 0 {
		return nil
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	for column, delta := range deltas {
		if !counterColumns[column] {
			return fmt.Errorf("unknown counter column %q", column)
		}
		updates[column] = gorm.Expr(column+" + ?", delta)
	}
	return r.db.Model(&domain.Campaign{}).Where("id = ?", id).Updates(updates).Error
}

func (r *campaignRepository) SaveSnapshot(id string, snapshot domain.StatsSnapshot) error {
	return r.db.Model(&domain.Campaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"stats":                snapshot,
			"total_recipients":     snapshot.Total,
			"pending_count":        snapshot.Pending,
			"sent_count":           snapshot.Sent,
			"delivered_count":      snapshot.Delivered,
			"opened_count":         snapshot.Opened,
			"replied_count":        snapshot.Replied,
			"failed_count":         snapshot.Failed,
			"delivered_not_opened": snapshot.DeliveredNotOpened,
			"opened_not_replied":   snapshot.OpenedNotReplied,
			"updated_at":           time.Now(),
		}).Error
}
