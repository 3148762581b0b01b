package usecase

import (
	"fmt"
	"sort"
	"time"

	campaigndomain "outreach-backend/internal/campaign/domain"
	campaignrepo "outreach-backend/internal/campaign/repository"
	"outreach-backend/internal/followup/domain"
	"outreach-backend/internal/followup/repository"
)

// Thresholds are the environment-tunable staleness cutoffs for candidate
// discovery, in minutes.
type Thresholds struct {
	DeliveredNotOpenedMinutes int
	OpenedNotRepliedMinutes   int
	MinGapMinutes             int
}

// Candidates are the two disjoint stale-recipient sets, each sorted with the
// most-elapsed recipient first.
type Candidates struct {
	DeliveredNotOpened []*campaigndomain.Recipient `json:"delivered_not_opened"`
	OpenedNotReplied   []*campaigndomain.Recipient `json:"opened_not_replied"`
}

// Engine derives stale recipients and queues follow-up sends without
// disturbing original-send statistics.
type Engine struct {
	campaignRepo  campaignrepo.CampaignRepository
	recipientRepo campaignrepo.RecipientRepository
	followupRepo  repository.FollowupRepository
	thresholds    Thresholds
	now           func() time.Time
}

// NewEngine creates a new follow-up Engine
func NewEngine(campaignRepo campaignrepo.CampaignRepository, recipientRepo campaignrepo.RecipientRepository, followupRepo repository.FollowupRepository, thresholds Thresholds) *Engine {
	return &Engine{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		followupRepo:  followupRepo,
		thresholds:    thresholds,
		now:           time.Now,
	}
}

// DiscoverCandidates scans a campaign's recipients and classifies them into
// the two disjoint candidate sets. Recipients whose last follow-up is more
// recent than the minimum gap are excluded from both.
func (e *Engine) DiscoverCandidates(campaignID string) (*Candidates, error) {
	recipients, err := e.recipientRepo.FindByCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	now := e.now()
	deliveredCutoff := now.Add(-time.Duration(e.thresholds.DeliveredNotOpenedMinutes) * time.Minute)
	openedCutoff := now.Add(-time.Duration(e.thresholds.OpenedNotRepliedMinutes) * time.Minute)
	gapCutoff := now.Add(-time.Duration(e.thresholds.MinGapMinutes) * time.Minute)

	result := &Candidates{}
	for _, r := range recipients {
		if r.LastFollowupAt != nil && r.LastFollowupAt.After(gapCutoff) {
			continue
		}

		switch r.Status {
		case campaigndomain.RecipientStatusDelivered:
			if r.DeliveredAt != nil && r.DeliveredAt.Before(deliveredCutoff) {
				result.DeliveredNotOpened = append(result.DeliveredNotOpened, r)
			}
		case campaigndomain.RecipientStatusOpened:
			if r.OpenedAt != nil && r.OpenedAt.Before(openedCutoff) {
				result.OpenedNotReplied = append(result.OpenedNotReplied, r)
			}
		}
	}

	sort.Slice(result.DeliveredNotOpened, func(i, j int) bool {
		return result.DeliveredNotOpened[i].DeliveredAt.Before(*result.DeliveredNotOpened[j].DeliveredAt)
	})
	sort.Slice(result.OpenedNotReplied, func(i, j int) bool {
		return result.OpenedNotReplied[i].OpenedAt.Before(*result.OpenedNotReplied[j].OpenedAt)
	})

	return result, nil
}

// QueueFollowups creates one independent FollowupEmail per recipient, to go
// out now or at the given future time. The recipient's primary status,
// timestamps and email history are never touched; only the follow-up
// counters move.
func (e *Engine) QueueFollowups(campaignID string, recipientIDs []string, subject, body string, sendAt *time.Time) ([]*domain.FollowupEmail, error) {
	if len(recipientIDs) == 0 {
		return nil, fmt.Errorf("no recipients given")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	now := e.now()
	status := domain.FollowupStatusQueued
	scheduledFor := now
	if sendAt != nil && sendAt.After(now) {
		status = domain.FollowupStatusScheduled
		scheduledFor = *sendAt
	}

	created := make([]*domain.FollowupEmail, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		recipient, err := e.recipientRepo.FindByID(recipientID)
		if err != nil {
			return created, fmt.Errorf("load recipient %s: %w", recipientID, err)
		}
		if recipient == nil {
			return created, fmt.Errorf("recipient %s not found", recipientID)
		}
		if recipient.CampaignID != campaignID {
			return created, fmt.Errorf("recipient %s does not belong to campaign %s", recipientID, campaignID)
		}

		followup := &domain.FollowupEmail{
			RecipientID:  recipient.ID,
			CampaignID:   recipient.CampaignID,
			ClientID:     recipient.ClientID,
			Subject:      subject,
			Body:         body,
			Status:       status,
			ScheduledFor: scheduledFor,
		}
		if err := e.followupRepo.Create(followup); err != nil {
			return created, fmt.Errorf("create followup for %s: %w", recipientID, err)
		}

		if err := e.recipientRepo.UpdateFields(recipient.ID, map[string]interface{}{
			"followups_sent":    recipient.FollowupsSent + 1,
			"followups_pending": recipient.FollowupsPending + 1,
			"last_followup_at":  now,
		}); err != nil {
			return created, fmt.Errorf("update recipient %s: %w", recipientID, err)
		}

		created = append(created, followup)
	}

	if err := e.campaignRepo.IncrementCounters(campaignID, map[string]int{
		campaignrepo.CounterFollowupsQueued: len(created),
	}); err != nil {
		return created, fmt.Errorf("update campaign followup counters: %w", err)
	}

	return created, nil
}
