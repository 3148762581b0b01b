package usecase

import (
	"fmt"
	"time"

	campaigndomain "outreach-backend/internal/campaign/domain"
	campaignrepo "outreach-backend/internal/campaign/repository"
	followupdomain "outreach-backend/internal/followup/domain"
	followuprepo "outreach-backend/internal/followup/repository"
)

// OpenTracker records tracking-pixel hits. It updates recipient records with
// its own fine-grained, field-scoped writes and never takes the periodic
// jobs' leases, so pixel requests cannot block on background work.
type OpenTracker struct {
	recipientRepo campaignrepo.RecipientRepository
	campaignRepo  campaignrepo.CampaignRepository
	followupRepo  followuprepo.FollowupRepository
	now           func() time.Time
}

// NewOpenTracker creates a new OpenTracker
func NewOpenTracker(recipientRepo campaignrepo.RecipientRepository, campaignRepo campaignrepo.CampaignRepository, followupRepo followuprepo.FollowupRepository) *OpenTracker {
	return &OpenTracker{
		recipientRepo: recipientRepo,
		campaignRepo:  campaignRepo,
		followupRepo:  followupRepo,
		now:           time.Now,
	}
}

// RecordOpen resolves the opaque token to a primary recipient or a follow-up
// email and records the open. Callers at the HTTP boundary swallow any error.
func (t *OpenTracker) RecordOpen(token string) error {
	if token == "" {
		return fmt.Errorf("empty tracking token")
	}
	now := t.now()

	recipient, err := t.recipientRepo.FindByTrackingToken(token)
	if err != nil {
		return fmt.Errorf("lookup recipient token: %w", err)
	}
	if recipient != nil {
		return t.recordRecipientOpen(recipient.ID, now)
	}

	followup, err := t.followupRepo.FindByTrackingToken(token)
	if err != nil {
		return fmt.Errorf("lookup followup token: %w", err)
	}
	if followup != nil {
		return t.recordFollowupOpen(followup.ID, now)
	}

	return fmt.Errorf("unknown tracking token")
}

// recordRecipientOpen re-reads the recipient under a row lock before
// mutating the tracking JSON, so an open landing during a reply-matcher poll
// is never overwritten by the poll's stale copy, and vice versa.
func (t *OpenTracker) recordRecipientOpen(recipientID string, now time.Time) error {
	var (
		firstOpen    bool
		wasDelivered bool
		campaignID   string
	)
	err := t.recipientRepo.UpdateWithLock(recipientID, func(fresh *campaigndomain.Recipient) (map[string]interface{}, error) {
		campaignID = fresh.CampaignID
		firstOpen = fresh.OpenedAt == nil
		wasDelivered = fresh.Status == campaigndomain.RecipientStatusDelivered

		history := fresh.EmailHistory
		if attempt := lastAttemptIndex(history); attempt >= 0 {
			history[attempt].OpenCount++
			if history[attempt].FirstOpenedAt == nil {
				history[attempt].FirstOpenedAt = &now
			}
			history[attempt].LastOpenedAt = &now
		}

		// The pixel identifies the recipient, not a person; opens are
		// attributed to the original contact.
		tracking := fresh.AggregatedTracking
		tracking.RecordOpen(fresh.ContactEmail, fresh.ContactName, fresh.Organization, now)

		fields := map[string]interface{}{
			"email_history":       history,
			"aggregated_tracking": tracking,
		}
		if firstOpen {
			fields["opened_at"] = now
			if wasDelivered {
				fields["status"] = campaigndomain.RecipientStatusOpened
			}
		}
		return fields, nil
	})
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}

	// Campaign counters move only on the first open; later opens change
	// per-recipient counts but not funnel membership.
	if firstOpen {
		deltas := map[string]int{campaignrepo.CounterOpened: 1}
		if wasDelivered {
			deltas[campaignrepo.CounterDeliveredNotOpened] = -1
			deltas[campaignrepo.CounterOpenedNotReplied] = 1
		}
		if err := t.campaignRepo.IncrementCounters(campaignID, deltas); err != nil {
			return fmt.Errorf("update campaign counters: %w", err)
		}
	}

	return nil
}

func (t *OpenTracker) recordFollowupOpen(followupID string, now time.Time) error {
	var (
		firstOpen  bool
		campaignID string
	)
	err := t.followupRepo.UpdateWithLock(followupID, func(fresh *followupdomain.FollowupEmail) (map[string]interface{}, error) {
		campaignID = fresh.CampaignID
		firstOpen = fresh.Tracking.FirstOpenedAt == nil

		tracking := fresh.Tracking
		tracking.OpenCount++
		if tracking.FirstOpenedAt == nil {
			tracking.FirstOpenedAt = &now
		}
		tracking.LastOpenedAt = &now

		fields := map[string]interface{}{"tracking": tracking}
		if firstOpen && (fresh.Status == followupdomain.FollowupStatusSent || fresh.Status == followupdomain.FollowupStatusDelivered) {
			fields["status"] = followupdomain.FollowupStatusOpened
		}
		return fields, nil
	})
	if err != nil {
		return fmt.Errorf("record followup open: %w", err)
	}

	if firstOpen {
		if err := t.campaignRepo.IncrementCounters(campaignID, map[string]int{
			campaignrepo.CounterFollowupsOpened: 1,
		}); err != nil {
			return fmt.Errorf("update campaign followup counters: %w", err)
		}
	}

	return nil
}

func lastAttemptIndex(history []campaigndomain.EmailAttempt) int {
	return len(history) - 1
}
