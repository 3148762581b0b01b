package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CronLog is one append-only audit entry for a job execution. Entries are
// never mutated after insertion.
type CronLog struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	JobName     string    `json:"job_name" gorm:"index;not null"`
	Success     bool      `json:"success"`
	Error       string    `json:"error"`
	Details     string    `json:"details"`
	DurationMS  int64     `json:"duration_ms"`
	Environment string    `json:"environment"`
	StartedAt   time.Time `json:"started_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CronLogRepository appends job execution audit entries.
type CronLogRepository interface {
	Append(entry *CronLog) error
	FindByJob(jobName string, limit int) ([]*CronLog, error)
}

// cronLogRepository implements CronLogRepository using GORM
type cronLogRepository struct {
	db *gorm.DB
}

// NewCronLogRepository creates a new GORM-based CronLogRepository
func NewCronLogRepository(db *gorm.DB) CronLogRepository {
	return &cronLogRepository{db: db}
}

func (r *cronLogRepository) Append(entry *CronLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()
	return r.db.Create(entry).Error
}

func (r *cronLogRepository) FindByJob(jobName string, limit int) ([]*CronLog, error) {
	var entries []*CronLog
	query := r.db.Where("job_name = ?", jobName).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}
