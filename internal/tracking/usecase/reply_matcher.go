package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	campaigndomain "outreach-backend/internal/campaign/domain"
	campaignrepo "outreach-backend/internal/campaign/repository"
	followupdomain "outreach-backend/internal/followup/domain"
	followuprepo "outreach-backend/internal/followup/repository"
	trackingdomain "outreach-backend/internal/tracking/domain"
	trackingrepo "outreach-backend/internal/tracking/repository"
	"outreach-backend/pkg/mailbox"
)

// ReplyMatcher polls each client's mailbox and matches inbound messages back
// to campaign recipients. Matching prefers the recipient's original contact
// address; failing that, any previously observed opener or replier address
// (the forwarded-reply heuristic) with a lower confidence.
type ReplyMatcher struct {
	campaignRepo  campaignrepo.CampaignRepository
	recipientRepo campaignrepo.RecipientRepository
	clientRepo    campaignrepo.ClientRepository
	followupRepo  followuprepo.FollowupRepository
	replyRepo     trackingrepo.ReplyRepository
	processedRepo trackingrepo.ProcessedMessageRepository
	reader        mailbox.Reader

	lookback      time.Duration
	minConfidence float64
	now           func() time.Time
}

const (
	confidenceExact   = 1.0
	confidenceEngager = 0.6
)

// NewReplyMatcher creates a new ReplyMatcher
func NewReplyMatcher(
	campaignRepo campaignrepo.CampaignRepository,
	recipientRepo campaignrepo.RecipientRepository,
	clientRepo campaignrepo.ClientRepository,
	followupRepo followuprepo.FollowupRepository,
	replyRepo trackingrepo.ReplyRepository,
	processedRepo trackingrepo.ProcessedMessageRepository,
	reader mailbox.Reader,
	lookbackDays int,
	minConfidence float64,
) *ReplyMatcher {
	return &ReplyMatcher{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		clientRepo:    clientRepo,
		followupRepo:  followupRepo,
		replyRepo:     replyRepo,
		processedRepo: processedRepo,
		reader:        reader,
		lookback:      time.Duration(lookbackDays) * 24 * time.Hour,
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

// Run polls every client that has at least one active or paused campaign.
// A failure for one client is logged and counted but never aborts the others.
func (m *ReplyMatcher) Run(ctx context.Context) error {
	campaigns, err := m.campaignRepo.FindByStatuses(campaigndomain.CampaignStatusActive, campaigndomain.CampaignStatusPaused)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}

	byClient := make(map[string][]*campaigndomain.Campaign)
	var clientIDs []string
	for _, c := range campaigns {
		if _, seen := byClient[c.ClientID]; !seen {
			clientIDs = append(clientIDs, c.ClientID)
		}
		byClient[c.ClientID] = append(byClient[c.ClientID], c)
	}

	errorCount := 0
	for _, clientID := range clientIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.processClient(clientID, byClient[clientID]); err != nil {
			log.Printf("[ReplyMatcher] Client %s: %v", clientID, err)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("reply matching finished with %d client errors", errorCount)
	}
	return nil
}

type matchCandidate struct {
	recipient  *campaigndomain.Recipient
	campaign   *campaigndomain.Campaign
	matchType  string
	confidence float64
}

func (m *ReplyMatcher) processClient(clientID string, campaigns []*campaigndomain.Campaign) error {
	client, err := m.clientRepo.FindByID(clientID)
	if err != nil {
		return fmt.Errorf("load client: %w", err)
	}
	if client == nil || !client.Active {
		return nil
	}

	since := m.now().Add(-m.lookback)
	messages, err := m.reader.FetchSince(mailbox.Settings{
		Host:     client.IMAP.Host,
		Port:     client.IMAP.Port,
		Username: client.IMAP.Username,
		Password: client.IMAP.Password,
	}, since)
	if err != nil {
		return fmt.Errorf("fetch mailbox: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	recipients, campaignsByRecipient, err := m.loadRecipients(campaigns)
	if err != nil {
		return err
	}

	matched := 0
	for _, msg := range messages {
		sender := campaigndomain.NormalizeEmail(msg.FromEmail)
		if sender == "" || sender == campaigndomain.NormalizeEmail(client.SMTP.FromAddress) {
			continue
		}

		candidate := m.findMatch(sender, recipients, campaignsByRecipient)
		if candidate == nil || candidate.confidence < m.minConfidence {
			continue
		}

		if !m.shouldProcess(candidate.recipient, sender) {
			continue
		}

		key := messageKey(msg)
		alreadyProcessed, err := m.processedRepo.IsProcessed(clientID, key)
		if err != nil {
			log.Printf("[ReplyMatcher] Dedupe check failed for %s: %v", candidate.recipient.ID, err)
			continue
		}
		if alreadyProcessed {
			continue
		}

		// The dedupe record is written only after the reply is durably
		// recorded; a transient store failure here leaves the message
		// unmarked so the next poll retries it.
		if err := m.recordReply(candidate, msg); err != nil {
			log.Printf("[ReplyMatcher] Recording reply for %s failed: %v", candidate.recipient.ID, err)
			continue
		}
		if _, err := m.processedRepo.EnsureProcessed(clientID, key, candidate.recipient.ID); err != nil {
			log.Printf("[ReplyMatcher] Marking message processed for %s failed: %v", candidate.recipient.ID, err)
		}
		matched++
	}

	if matched > 0 {
		log.Printf("[ReplyMatcher] Client %s: matched %d replies from %d messages", clientID, matched, len(messages))
	}
	return nil
}

func (m *ReplyMatcher) loadRecipients(campaigns []*campaigndomain.Campaign) ([]*campaigndomain.Recipient, map[string]*campaigndomain.Campaign, error) {
	var all []*campaigndomain.Recipient
	byRecipient := make(map[string]*campaigndomain.Campaign)
	for _, campaign := range campaigns {
		recipients, err := m.recipientRepo.FindByCampaign(campaign.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("load recipients for campaign %s: %w", campaign.ID, err)
		}
		for _, r := range recipients {
			all = append(all, r)
			byRecipient[r.ID] = campaign
		}
	}
	return all, byRecipient, nil
}

// findMatch resolves the sender to at most one recipient: an exact contact
// address match wins; otherwise any recipient whose engagement history
// contains the address (a colleague replying to a forwarded email).
func (m *ReplyMatcher) findMatch(sender string, recipients []*campaigndomain.Recipient, campaigns map[string]*campaigndomain.Campaign) *matchCandidate {
	for _, r := range recipients {
		if campaigndomain.NormalizeEmail(r.ContactEmail) == sender {
			return &matchCandidate{
				recipient:  r,
				campaign:   campaigns[r.ID],
				matchType:  trackingdomain.MatchTypeExact,
				confidence: confidenceExact,
			}
		}
	}
	for _, r := range recipients {
		if r.AggregatedTracking.HasEngager(sender) {
			return &matchCandidate{
				recipient:  r,
				campaign:   campaigns[r.ID],
				matchType:  trackingdomain.MatchTypeEngager,
				confidence: confidenceEngager,
			}
		}
	}
	return nil
}

// shouldProcess excludes replies already recorded for this exact person and
// replies to an email the system never actually sent.
func (m *ReplyMatcher) shouldProcess(recipient *campaigndomain.Recipient, sender string) bool {
	if len(recipient.EmailHistory) == 0 {
		return false
	}
	if recipient.AggregatedTracking.HasReplier(sender) {
		return false
	}
	return true
}

func (m *ReplyMatcher) recordReply(candidate *matchCandidate, msg mailbox.InboundMessage) error {
	recipient := candidate.recipient
	now := m.now()
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	sender := campaigndomain.NormalizeEmail(msg.FromEmail)
	organization := mailbox.GuessOrganization(sender)

	// A reply that postdates a follow-up send belongs to the follow-up
	// funnel, not to the primary statistics.
	followup := m.latestSentFollowup(recipient.ID)
	attempt := recipient.LatestAttempt()
	if followup != nil && attempt != nil && attempt.SentAt.Before(*followup.SentAt) {
		return m.recordFollowupReply(candidate, followup, msg, sender, organization, receivedAt)
	}

	reply := campaigndomain.AttemptReply{
		ReplierEmail: sender,
		ReplierName:  msg.FromName,
		Organization: organization,
		MatchType:    candidate.matchType,
		Confidence:   candidate.confidence,
		ReceivedAt:   receivedAt,
	}

	// The recipient snapshot held since the start of the poll may be stale:
	// pixel hits land concurrently. The mutation runs against the row as it
	// is now, under a lock, so no open or earlier reply gets overwritten.
	var (
		attemptID      string
		wasOpened      bool
		wasDelivered   bool
		alreadyReplied bool
		duplicate      bool
	)
	err := m.recipientRepo.UpdateWithLock(recipient.ID, func(fresh *campaigndomain.Recipient) (map[string]interface{}, error) {
		if fresh.AggregatedTracking.HasReplier(sender) {
			duplicate = true
			return nil, nil
		}

		history := fresh.EmailHistory
		if idx := len(history) - 1; idx >= 0 {
			history[idx].Replies = append(history[idx].Replies, reply)
			attemptID = history[idx].AttemptID
		}

		tracking := fresh.AggregatedTracking
		tracking.RecordReply(sender, msg.FromName, organization, receivedAt)

		wasOpened = fresh.Status == campaigndomain.RecipientStatusOpened
		wasDelivered = fresh.Status == campaigndomain.RecipientStatusDelivered
		alreadyReplied = fresh.Status == campaigndomain.RecipientStatusReplied

		fields := map[string]interface{}{
			"email_history":       history,
			"aggregated_tracking": tracking,
		}
		if !alreadyReplied {
			fields["status"] = campaigndomain.RecipientStatusReplied
		}
		if fresh.RepliedAt == nil {
			fields["replied_at"] = receivedAt
		}
		return fields, nil
	})
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	if duplicate {
		return nil
	}

	if err := m.replyRepo.Create(&trackingdomain.Reply{
		CampaignID:   recipient.CampaignID,
		RecipientID:  recipient.ID,
		AttemptID:    attemptID,
		ReplierName:  msg.FromName,
		ReplierEmail: sender,
		Organization: organization,
		MatchType:    candidate.matchType,
		Confidence:   candidate.confidence,
		Subject:      msg.Subject,
		Snippet:      msg.Snippet,
		ReceivedAt:   receivedAt,
	}); err != nil {
		return fmt.Errorf("persist reply audit record: %w", err)
	}

	if !alreadyReplied {
		deltas := map[string]int{campaignrepo.CounterReplied: 1}
		if wasOpened {
			deltas[campaignrepo.CounterOpenedNotReplied] = -1
		}
		if wasDelivered {
			deltas[campaignrepo.CounterDeliveredNotOpened] = -1
		}
		if err := m.campaignRepo.IncrementCounters(recipient.CampaignID, deltas); err != nil {
			return fmt.Errorf("update campaign counters: %w", err)
		}
	}

	return nil
}

func (m *ReplyMatcher) recordFollowupReply(candidate *matchCandidate, followup *followupdomain.FollowupEmail, msg mailbox.InboundMessage, sender, organization string, receivedAt time.Time) error {
	recipient := candidate.recipient

	if err := m.followupRepo.UpdateWithLock(followup.ID, func(fresh *followupdomain.FollowupEmail) (map[string]interface{}, error) {
		tracking := fresh.Tracking
		tracking.Replied = true
		tracking.RepliedAt = &receivedAt
		tracking.ReplierEmail = sender
		return map[string]interface{}{
			"status":   followupdomain.FollowupStatusReplied,
			"tracking": tracking,
		}, nil
	}); err != nil {
		return fmt.Errorf("update followup: %w", err)
	}

	// The engagement union still spans every send in the recipient's
	// history; only the primary funnel counters stay untouched.
	if err := m.recipientRepo.UpdateWithLock(recipient.ID, func(fresh *campaigndomain.Recipient) (map[string]interface{}, error) {
		aggregated := fresh.AggregatedTracking
		aggregated.RecordReply(sender, msg.FromName, organization, receivedAt)
		return map[string]interface{}{"aggregated_tracking": aggregated}, nil
	}); err != nil {
		return fmt.Errorf("update recipient tracking: %w", err)
	}

	if err := m.replyRepo.Create(&trackingdomain.Reply{
		CampaignID:   recipient.CampaignID,
		RecipientID:  recipient.ID,
		AttemptID:    followup.ID,
		ReplierName:  msg.FromName,
		ReplierEmail: sender,
		Organization: organization,
		MatchType:    candidate.matchType,
		Confidence:   candidate.confidence,
		Subject:      msg.Subject,
		Snippet:      msg.Snippet,
		ReceivedAt:   receivedAt,
	}); err != nil {
		return fmt.Errorf("persist reply audit record: %w", err)
	}

	return m.campaignRepo.IncrementCounters(recipient.CampaignID, map[string]int{
		campaignrepo.CounterFollowupsReplied: 1,
	})
}

func (m *ReplyMatcher) latestSentFollowup(recipientID string) *followupdomain.FollowupEmail {
	followups, err := m.followupRepo.FindByRecipient(recipientID)
	if err != nil {
		log.Printf("[ReplyMatcher] Loading followups for %s failed: %v", recipientID, err)
		return nil
	}
	var latest *followupdomain.FollowupEmail
	for _, f := range followups {
		if f.SentAt == nil {
			continue
		}
		if latest == nil || f.SentAt.After(*latest.SentAt) {
			latest = f
		}
	}
	return latest
}

// messageKey prefers the Message-Id header; without one, a digest of the
// sender, subject and timestamp stands in so re-polls stay deduplicated.
func messageKey(msg mailbox.InboundMessage) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	sum := sha256.Sum256([]byte(msg.FromEmail + "|" + msg.Subject + "|" + msg.ReceivedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:16])
}
