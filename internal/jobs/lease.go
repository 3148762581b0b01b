package jobs

import (
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobLease is a named mutual-exclusion lease with a TTL. A job run acquires
// the lease for its name before doing work; an expired lease can be taken
// over, so a hung run cannot permanently block future runs.
type JobLease struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaseStore acquires and releases named leases.
type LeaseStore interface {
	// Acquire returns true when the caller now holds the lease.
	Acquire(name, owner string, ttl time.Duration) (bool, error)
	// Release frees the lease if the caller still owns it.
	Release(name, owner string) error
}

// gormLeaseStore implements LeaseStore on the database, giving mutual
// exclusion across instances in a multi-instance deployment.
type gormLeaseStore struct {
	db *gorm.DB
}

// NewLeaseStore creates a new GORM-based LeaseStore
func NewLeaseStore(db *gorm.DB) LeaseStore {
	return &gormLeaseStore{db: db}
}

func (s *gormLeaseStore) Acquire(name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lease := JobLease{
		Name:      name,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}
	// Insert, or take over only when the existing lease has expired. Zero
	// rows affected means another owner still holds it.
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lte{Column: clause.Column{Table: "job_leases", Name: "expires_at"}, Value: now},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      owner,
			"expires_at": lease.ExpiresAt,
			"updated_at": now,
		}),
	}).Create(&lease)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *gormLeaseStore) Release(name, owner string) error {
	return s.db.Where("name = ? AND owner = ?", name, owner).Delete(&JobLease{}).Error
}

// memoryLeaseStore implements LeaseStore in process memory, sufficient for a
// single-instance deployment and for tests.
type memoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]JobLease
}

// NewMemoryLeaseStore creates an in-memory LeaseStore
func NewMemoryLeaseStore() LeaseStore {
	return &memoryLeaseStore{leases: make(map[string]JobLease)}
}

func (s *memoryLeaseStore) Acquire(name, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.leases[name]; ok && existing.ExpiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = JobLease{Name: name, Owner: owner, ExpiresAt: now.Add(ttl), UpdatedAt: now}
	return true, nil
}

func (s *memoryLeaseStore) Release(name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.leases[name]; ok && existing.Owner == owner {
		delete(s.leases, name)
	}
	return nil
}
