package repository

import (
	"time"

	"outreach-backend/internal/campaign/domain"
)

// Fast-path counter column names accepted by IncrementCounters.
const (
	CounterPending            = "pending_count"
	CounterSent               = "sent_count"
	CounterDelivered          = "delivered_count"
	CounterOpened             = "opened_count"
	CounterReplied            = "replied_count"
	CounterFailed             = "failed_count"
	CounterDeliveredNotOpened = "delivered_not_opened"
	CounterOpenedNotReplied   = "opened_not_replied"
	CounterFollowupsQueued    = "followups_queued"
	CounterFollowupsSent      = "followups_sent"
	CounterFollowupsOpened    = "followups_opened"
	CounterFollowupsReplied   = "followups_replied"
)

// ClientRepository provides access to client credential and quota state.
type ClientRepository interface {
	FindByID(id string) (*domain.Client, error)
	FindByIDs(ids []string) ([]*domain.Client, error)
	// RegisterSends records n sends against the client's daily quota for the
	// given day (YYYY-MM-DD), resetting the counter when the day changes.
	RegisterSends(id string, day string, n int) error
}

// CampaignRepository provides access to campaign state and counters.
type CampaignRepository interface {
	Create(c *domain.Campaign) error
	FindByID(id string) (*domain.Campaign, error)
	FindByStatuses(statuses ...domain.CampaignStatus) ([]*domain.Campaign, error)
	UpdateStatus(id string, status domain.CampaignStatus) error
	// MarkCompleted flips a campaign in one of the from statuses to completed
	// exactly once. Returns false when no transition happened. The completed
	// state is terminal; nothing flips it back.
	MarkCompleted(id string, at time.Time, from ...domain.CampaignStatus) (bool, error)
	// IncrementCounters applies field-scoped atomic deltas to the fast-path
	// counter columns. Keys are the Counter* constants.
	IncrementCounters(id string, deltas map[string]int) error
	// SaveSnapshot writes the aggregator's recomputed snapshot and aligns the
	// fast-path counters with it.
	SaveSnapshot(id string, snapshot domain.StatsSnapshot) error
}

// RecipientRepository provides access to per-recipient state.
type RecipientRepository interface {
	CreateBatch(recipients []*domain.Recipient) error
	FindByID(id string) (*domain.Recipient, error)
	FindByCampaign(campaignID string) ([]*domain.Recipient, error)
	// FindDue returns pending recipients of the given campaigns whose
	// scheduled send time has passed, oldest first.
	FindDue(campaignIDs []string, now time.Time, limit int) ([]*domain.Recipient, error)
	FindByTrackingToken(token string) (*domain.Recipient, error)
	// UpdateFields applies a field-scoped update to one recipient.
	UpdateFields(id string, fields map[string]interface{}) error
	// UpdateWithLock re-reads the recipient under a row lock, calls mutate on
	// the current state, and applies the returned fields in the same
	// transaction. Concurrent writers to the JSON columns (email history,
	// aggregated tracking) must go through this so neither side overwrites
	// the other's union entries with a stale copy.
	UpdateWithLock(id string, mutate func(r *domain.Recipient) (map[string]interface{}, error)) error
	// DecrementFollowupsPending atomically decrements the pending follow-up
	// counter, never below zero.
	DecrementFollowupsPending(id string) error
	// ResetForRetry transitions a failed recipient back to pending, clearing
	// the retry bookkeeping while preserving the error history for audit.
	ResetForRetry(id string, scheduledFor time.Time) error
}
