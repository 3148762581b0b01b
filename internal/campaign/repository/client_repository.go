package repository

import (
	"time"

	"outreach-backend/internal/campaign/domain"

	"gorm.io/gorm"
)

// clientRepository implements ClientRepository using GORM
type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new GORM-based ClientRepository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) FindByID(id string) (*domain.Client, error) {
	var client domain.Client
	err := r.db.Where("id = ?", id).First(&client).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) FindByIDs(ids []string) ([]*domain.Client, error) {
	var clients []*domain.Client
	err := r.db.Where("id IN ?", ids).Find(&clients).Error
	return clients, err
}

func (r *clientRepository) RegisterSends(id string, day string, n int) error {
	// A day change resets the counter before applying the increment.
	result := r.db.Model(&domain.Client{}).
		Where("id = ? AND last_send_date = ?", id, day).
		Updates(map[string]interface{}{
			"emails_sent_today": gorm.Expr("emails_sent_today + ?", n),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.db.Model(&domain.Client{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"emails_sent_today": n,
			"last_send_date":    day,
			"updated_at":        time.Now(),
		}).Error
}
