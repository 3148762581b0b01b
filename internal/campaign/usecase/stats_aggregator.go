package usecase

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"outreach-backend/internal/campaign/domain"
	"outreach-backend/internal/campaign/repository"
)

// StatsAggregator periodically recomputes campaign-level counters from
// recipient-level state. Its output is the authoritative snapshot; the
// fast-path counters updated inline by the dispatch worker, open tracker and
// reply matcher are a cache that this job realigns on every run.
type StatsAggregator struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	now           func() time.Time
}

// NewStatsAggregator creates a new StatsAggregator
func NewStatsAggregator(campaignRepo repository.CampaignRepository, recipientRepo repository.RecipientRepository) *StatsAggregator {
	return &StatsAggregator{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		now:           time.Now,
	}
}

// Run recomputes stats for every non-completed campaign. A failure on one
// campaign is logged and counted but does not abort the others.
func (a *StatsAggregator) Run(ctx context.Context) error {
	campaigns, err := a.campaignRepo.FindByStatuses(domain.CampaignStatusActive, domain.CampaignStatusPaused)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}

	errorCount := 0
	for _, campaign := range campaigns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.RecomputeCampaign(campaign); err != nil {
			log.Printf("[Stats] Campaign %s: %v", campaign.ID, err)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("stats aggregation finished with %d campaign errors", errorCount)
	}
	return nil
}

// RecomputeCampaign rebuilds one campaign's snapshot from a full recipient
// scan and applies the completion transition when the campaign is exhausted.
func (a *StatsAggregator) RecomputeCampaign(campaign *domain.Campaign) (*domain.StatsSnapshot, error) {
	recipients, err := a.recipientRepo.FindByCampaign(campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	snapshot := ComputeSnapshot(recipients)
	if err := a.campaignRepo.SaveSnapshot(campaign.ID, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if campaign.Status == domain.CampaignStatusActive && snapshot.Exhausted() {
		completed, err := a.campaignRepo.MarkCompleted(campaign.ID, a.now(), domain.CampaignStatusActive)
		if err != nil {
			return &snapshot, fmt.Errorf("mark completed: %w", err)
		}
		if completed {
			log.Printf("[Stats] Campaign %s completed (%d recipients, %d failed)",
				campaign.ID, snapshot.Total, snapshot.Failed)
		}
	}

	return &snapshot, nil
}

// ComputeSnapshot is a pure function of current recipient state: the same
// input always yields an identical snapshot, so repeated aggregator runs
// over unchanged recipients write identical values.
func ComputeSnapshot(recipients []*domain.Recipient) domain.StatsSnapshot {
	snapshot := domain.StatsSnapshot{
		Total: len(recipients),
	}

	uniqueOpeners := make(map[string]struct{})
	uniqueRepliers := make(map[string]struct{})

	for _, r := range recipients {
		switch r.Status {
		case domain.RecipientStatusPending:
			snapshot.Pending++
		case domain.RecipientStatusDelivered:
			snapshot.DeliveredNotOpened++
		case domain.RecipientStatusOpened:
			snapshot.OpenedNotReplied++
		case domain.RecipientStatusReplied:
			snapshot.Replied++
		case domain.RecipientStatusFailed:
			snapshot.Failed++
		}

		if r.SentAt != nil {
			snapshot.Sent++
		}
		if r.DeliveredAt != nil {
			snapshot.Delivered++
		}
		if r.OpenedAt != nil {
			snapshot.Opened++
		}

		for email := range r.AggregatedTracking.Openers {
			uniqueOpeners[email] = struct{}{}
		}
		for email := range r.AggregatedTracking.Repliers {
			uniqueRepliers[email] = struct{}{}
		}

		switch opens := r.AggregatedTracking.TotalOpens(); {
		case opens == 1:
			snapshot.OpenedOnce++
		case opens > 1:
			snapshot.OpenedMultiple++
		}
	}

	snapshot.UniqueOpeners = len(uniqueOpeners)
	snapshot.UniqueRepliers = len(uniqueRepliers)

	snapshot.DeliveryRate = percentage(snapshot.Delivered, snapshot.Total)
	snapshot.OpenRate = percentage(snapshot.Opened, snapshot.Delivered)
	snapshot.ReplyRate = percentage(snapshot.Replied, snapshot.Delivered)

	return snapshot
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
