package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	campaigndomain "outreach-backend/internal/campaign/domain"
	campaignrepo "outreach-backend/internal/campaign/repository"
	followupdomain "outreach-backend/internal/followup/domain"
	followuprepo "outreach-backend/internal/followup/repository"
	"outreach-backend/pkg/mailer"

	"github.com/google/uuid"
)

const defaultBatchLimit = 200

// Worker is the periodic dispatch job: it selects due pending recipients and
// due follow-ups, enforces per-client daily quotas, sends through each
// client's own SMTP credentials, and records outcomes with classified
// failures and bounded exponential backoff.
type Worker struct {
	campaignRepo  campaignrepo.CampaignRepository
	recipientRepo campaignrepo.RecipientRepository
	clientRepo    campaignrepo.ClientRepository
	followupRepo  followuprepo.FollowupRepository
	transport     mailer.Transport

	publicBaseURL string
	maxAttempts   int
	backoffBase   time.Duration
	backoffCap    time.Duration
	batchLimit    int
	now           func() time.Time
}

// NewWorker creates a new dispatch Worker
func NewWorker(
	campaignRepo campaignrepo.CampaignRepository,
	recipientRepo campaignrepo.RecipientRepository,
	clientRepo campaignrepo.ClientRepository,
	followupRepo followuprepo.FollowupRepository,
	transport mailer.Transport,
	publicBaseURL string,
	maxAttempts int,
	backoffBase, backoffCap time.Duration,
) *Worker {
	return &Worker{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		clientRepo:    clientRepo,
		followupRepo:  followupRepo,
		transport:     transport,
		publicBaseURL: publicBaseURL,
		maxAttempts:   maxAttempts,
		backoffBase:   backoffBase,
		backoffCap:    backoffCap,
		batchLimit:    defaultBatchLimit,
		now:           time.Now,
	}
}

// Run executes one dispatch pass. Campaign pause is honored at batch
// selection: only active campaigns contribute due recipients.
func (w *Worker) Run(ctx context.Context) error {
	now := w.now()

	campaigns, err := w.campaignRepo.FindByStatuses(campaigndomain.CampaignStatusActive)
	if err != nil {
		return fmt.Errorf("list active campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return nil
	}

	campaignsByID := make(map[string]*campaigndomain.Campaign, len(campaigns))
	campaignIDs := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		campaignsByID[c.ID] = c
		campaignIDs = append(campaignIDs, c.ID)
	}

	due, err := w.recipientRepo.FindDue(campaignIDs, now, w.batchLimit)
	if err != nil {
		return fmt.Errorf("query due recipients: %w", err)
	}

	// Group by client: each client has its own credentials and daily cap.
	byClient := make(map[string][]*campaigndomain.Recipient)
	var clientIDs []string
	for _, r := range due {
		if _, seen := byClient[r.ClientID]; !seen {
			clientIDs = append(clientIDs, r.ClientID)
		}
		byClient[r.ClientID] = append(byClient[r.ClientID], r)
	}

	clients, err := w.loadClients(clientIDs)
	if err != nil {
		return err
	}

	day := now.Format("2006-01-02")
	errorCount := 0
	quota := make(map[string]int)

	for _, clientID := range clientIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		client := clients[clientID]
		if client == nil || !client.Active {
			continue
		}

		remaining := client.RemainingToday(day)
		if remaining <= 0 {
			log.Printf("[Dispatch] Client %s reached its daily limit (%d), skipping %d due recipients",
				client.ID, client.DailyEmailLimit, len(byClient[clientID]))
			continue
		}

		batch := byClient[clientID]
		if len(batch) > remaining {
			batch = batch[:remaining]
		}

		sent := 0
		for _, recipient := range batch {
			campaign := campaignsByID[recipient.CampaignID]
			if campaign == nil {
				continue
			}
			if err := w.sendToRecipient(recipient, campaign, client, now); err != nil {
				errorCount++
			} else {
				sent++
			}
		}

		if sent > 0 {
			if err := w.clientRepo.RegisterSends(client.ID, day, sent); err != nil {
				log.Printf("[Dispatch] Client %s: quota update failed: %v", client.ID, err)
				errorCount++
			}
			quota[client.ID] = remaining - sent
		} else {
			quota[client.ID] = remaining
		}
	}

	if err := w.dispatchFollowups(ctx, now, quota, campaignsByID); err != nil {
		log.Printf("[Dispatch] Followup pass: %v", err)
		errorCount++
	}

	if errorCount > 0 {
		return fmt.Errorf("dispatch finished with %d errors", errorCount)
	}
	return nil
}

// sendToRecipient performs one transmission and records the outcome. No lock
// is held around the SMTP call; the job lease only guards run selection.
func (w *Worker) sendToRecipient(recipient *campaigndomain.Recipient, campaign *campaigndomain.Campaign, client *campaigndomain.Client, now time.Time) error {
	msg := mailer.Message{
		To:       recipient.ContactEmail,
		ToName:   recipient.ContactName,
		Subject:  campaign.EmailSubject,
		HTMLBody: w.embedPixel(campaign.EmailBody, recipient.TrackingToken),
	}

	messageID, err := w.transport.Send(smtpSettings(client), msg)
	if err != nil {
		w.recordFailure(recipient, campaign, err, now)
		return err
	}

	attempt := campaigndomain.EmailAttempt{
		AttemptID:     uuid.New().String(),
		Subject:       campaign.EmailSubject,
		MessageID:     messageID,
		TrackingToken: recipient.TrackingToken,
		SentAt:        now,
	}
	history := append(recipient.EmailHistory, attempt)

	if err := w.recipientRepo.UpdateFields(recipient.ID, map[string]interface{}{
		"status":        campaigndomain.RecipientStatusDelivered,
		"sent_at":       now,
		"delivered_at":  now,
		"email_history": history,
		"last_error":    "",
	}); err != nil {
		log.Printf("[Dispatch] Recipient %s: state update failed after send: %v", recipient.ID, err)
		return err
	}

	if err := w.campaignRepo.IncrementCounters(campaign.ID, map[string]int{
		campaignrepo.CounterPending:            -1,
		campaignrepo.CounterSent:               1,
		campaignrepo.CounterDelivered:          1,
		campaignrepo.CounterDeliveredNotOpened: 1,
	}); err != nil {
		log.Printf("[Dispatch] Campaign %s: counter update failed: %v", campaign.ID, err)
	}

	return nil
}

// recordFailure classifies the error, appends it to the recipient's error
// history, and either schedules a retry with exponential backoff or marks
// the recipient terminally failed.
func (w *Worker) recordFailure(recipient *campaigndomain.Recipient, campaign *campaigndomain.Campaign, sendErr error, now time.Time) {
	kind := mailer.Classify(sendErr)
	attemptNumber := recipient.RetryCount + 1

	failure := campaigndomain.SendFailure{
		Kind:          string(kind),
		RawMessage:    sendErr.Error(),
		FriendlyError: kind.FriendlyMessage(),
		Attempt:       attemptNumber,
		Retryable:     kind.Retryable(),
		OccurredAt:    now,
	}
	history := append(recipient.ErrorHistory, failure)

	terminal := !kind.Retryable() || attemptNumber >= w.maxAttempts

	fields := map[string]interface{}{
		"retry_count":   attemptNumber,
		"last_error":    sendErr.Error(),
		"error_history": history,
	}
	if terminal {
		fields["status"] = campaigndomain.RecipientStatusFailed
		fields["can_retry"] = false
		log.Printf("[Dispatch] Recipient %s failed terminally (%s, attempt %d): %v",
			recipient.ID, kind, attemptNumber, sendErr)
	} else {
		retryAt := now.Add(w.backoff(attemptNumber))
		fields["scheduled_for"] = retryAt
		fields["can_retry"] = true
		log.Printf("[Dispatch] Recipient %s send failed (%s, attempt %d), retrying at %s",
			recipient.ID, kind, attemptNumber, retryAt.Format(time.RFC3339))
	}

	if err := w.recipientRepo.UpdateFields(recipient.ID, fields); err != nil {
		log.Printf("[Dispatch] Recipient %s: failure update failed: %v", recipient.ID, err)
		return
	}

	if terminal {
		if err := w.campaignRepo.IncrementCounters(campaign.ID, map[string]int{
			campaignrepo.CounterPending: -1,
			campaignrepo.CounterFailed:  1,
		}); err != nil {
			log.Printf("[Dispatch] Campaign %s: counter update failed: %v", campaign.ID, err)
		}
	}
}

// backoff is a function of the attempt number only, doubling from the base
// up to the configured cap.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.backoffCap {
			return w.backoffCap
		}
	}
	if delay > w.backoffCap {
		return w.backoffCap
	}
	return delay
}

// dispatchFollowups sends due follow-up emails. Follow-ups ride the same
// transport and quota but never touch the recipient's primary email history
// or primary campaign statistics. Pause applies to them the same way it does
// to primary sends: only follow-ups of active campaigns go out.
func (w *Worker) dispatchFollowups(ctx context.Context, now time.Time, quota map[string]int, activeCampaigns map[string]*campaigndomain.Campaign) error {
	allDue, err := w.followupRepo.FindDue(now, w.batchLimit)
	if err != nil {
		return fmt.Errorf("query due followups: %w", err)
	}

	var due []*followupdomain.FollowupEmail
	for _, f := range allDue {
		if activeCampaigns[f.CampaignID] != nil {
			due = append(due, f)
		}
	}
	if len(due) == 0 {
		return nil
	}

	var clientIDs []string
	seen := make(map[string]bool)
	for _, f := range due {
		if !seen[f.ClientID] {
			seen[f.ClientID] = true
			clientIDs = append(clientIDs, f.ClientID)
		}
	}
	clients, err := w.loadClients(clientIDs)
	if err != nil {
		return err
	}

	day := now.Format("2006-01-02")
	errorCount := 0
	sentPerClient := make(map[string]int)

	for _, followup := range due {
		if err := ctx.Err(); err != nil {
			return err
		}

		client := clients[followup.ClientID]
		if client == nil || !client.Active {
			continue
		}

		remaining, tracked := quota[client.ID]
		if !tracked {
			remaining = client.RemainingToday(day)
		}
		if remaining-sentPerClient[client.ID] <= 0 {
			continue
		}

		recipient, err := w.recipientRepo.FindByID(followup.RecipientID)
		if err != nil || recipient == nil {
			log.Printf("[Dispatch] Followup %s: recipient %s not found", followup.ID, followup.RecipientID)
			continue
		}

		if err := w.sendFollowup(followup, recipient, client, now); err != nil {
			errorCount++
			continue
		}
		sentPerClient[client.ID]++
	}

	for clientID, sent := range sentPerClient {
		if err := w.clientRepo.RegisterSends(clientID, day, sent); err != nil {
			log.Printf("[Dispatch] Client %s: quota update failed: %v", clientID, err)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("%d followup sends failed", errorCount)
	}
	return nil
}

func (w *Worker) sendFollowup(followup *followupdomain.FollowupEmail, recipient *campaigndomain.Recipient, client *campaigndomain.Client, now time.Time) error {
	msg := mailer.Message{
		To:       recipient.ContactEmail,
		ToName:   recipient.ContactName,
		Subject:  followup.Subject,
		HTMLBody: w.embedPixel(followup.Body, followup.TrackingToken),
	}

	messageID, err := w.transport.Send(smtpSettings(client), msg)
	if err != nil {
		kind := mailer.Classify(err)
		log.Printf("[Dispatch] Followup %s send failed (%s): %v", followup.ID, kind, err)
		if updateErr := w.followupRepo.UpdateFields(followup.ID, map[string]interface{}{
			"status":     followupdomain.FollowupStatusFailed,
			"last_error": err.Error(),
		}); updateErr != nil {
			log.Printf("[Dispatch] Followup %s: failure update failed: %v", followup.ID, updateErr)
		}
		return err
	}

	if err := w.followupRepo.UpdateFields(followup.ID, map[string]interface{}{
		"status":     followupdomain.FollowupStatusDelivered,
		"sent_at":    now,
		"message_id": messageID,
	}); err != nil {
		log.Printf("[Dispatch] Followup %s: state update failed after send: %v", followup.ID, err)
		return err
	}

	if err := w.recipientRepo.DecrementFollowupsPending(recipient.ID); err != nil {
		log.Printf("[Dispatch] Recipient %s: followup counter update failed: %v", recipient.ID, err)
	}

	if err := w.campaignRepo.IncrementCounters(followup.CampaignID, map[string]int{
		campaignrepo.CounterFollowupsQueued: -1,
		campaignrepo.CounterFollowupsSent:   1,
	}); err != nil {
		log.Printf("[Dispatch] Campaign %s: followup counter update failed: %v", followup.CampaignID, err)
	}

	return nil
}

func (w *Worker) loadClients(ids []string) (map[string]*campaigndomain.Client, error) {
	result := make(map[string]*campaigndomain.Client, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	clients, err := w.clientRepo.FindByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	for _, c := range clients {
		result[c.ID] = c
	}
	return result, nil
}

func smtpSettings(client *campaigndomain.Client) mailer.Settings {
	return mailer.Settings{
		Host:        client.SMTP.Host,
		Port:        client.SMTP.Port,
		Security:    client.SMTP.Security,
		Username:    client.SMTP.Username,
		Password:    client.SMTP.Password,
		FromName:    client.SMTP.FromName,
		FromAddress: client.SMTP.FromAddress,
	}
}

func (w *Worker) embedPixel(htmlBody, token string) string {
	pixel := fmt.Sprintf(`<img src="%s/t/%s.gif" width="1" height="1" alt="" style="display:none">`,
		w.publicBaseURL, token)
	return htmlBody + pixel
}
