package usecase

import (
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
	"time"

	"outreach-backend/internal/campaign/domain"
	"outreach-backend/internal/campaign/repository"
	"outreach-backend/internal/campaign/scheduler"
	"outreach-backend/internal/jobs"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContactInput is one audience member handed in at campaign creation.
type ContactInput struct {
	Name         string               `json:"name"`
	Email        string               `json:"email" binding:"required"`
	Organization string               `json:"organization"`
	Type         domain.RecipientType `json:"type"`
	MatchScore   float64              `json:"match_score"`
}

// CampaignUsecase drives campaign lifecycle operations.
type CampaignUsecase interface {
	CreateCampaign(clientID, name, subject, body string, recipientTypes []string, policy domain.SchedulePolicy, contacts []ContactInput) (*domain.Campaign, error)
	GetCampaign(id string) (*domain.Campaign, error)
	GetCampaignByShareToken(token string) (*domain.Campaign, error)
	Pause(id string) error
	Resume(id string) error
	Complete(id string) error
	Reschedule(campaignID, actor string) (int, error)
	RetryRecipient(recipientID string) error
}

// campaignUsecase implements CampaignUsecase
type campaignUsecase struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	cronLogs      jobs.CronLogRepository
	shareSecret   string
	now           func() time.Time
}

// NewCampaignUsecase creates a new instance of campaignUsecase
func NewCampaignUsecase(campaignRepo repository.CampaignRepository, recipientRepo repository.RecipientRepository, cronLogs jobs.CronLogRepository, shareSecret string) CampaignUsecase {
	return &campaignUsecase{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		cronLogs:      cronLogs,
		shareSecret:   shareSecret,
		now:           time.Now,
	}
}

func (u *campaignUsecase) CreateCampaign(clientID, name, subject, body string, recipientTypes []string, policy domain.SchedulePolicy, contacts []ContactInput) (*domain.Campaign, error) {
	if err := scheduler.ValidatePolicy(policy); err != nil {
		return nil, fmt.Errorf("invalid schedule policy: %w", err)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("campaign needs at least one recipient")
	}

	now := u.now()
	rng := rand.New(rand.NewSource(now.UnixNano()))
	times, err := scheduler.ComputeSchedule(policy, len(contacts), now, rng)
	if err != nil {
		return nil, err
	}

	campaign := &domain.Campaign{
		ID:              uuid.New().String(),
		ClientID:        clientID,
		Name:            name,
		EmailSubject:    subject,
		EmailBody:       body,
		RecipientTypes:  recipientTypes,
		Status:          domain.CampaignStatusActive,
		Schedule:        policy,
		TotalRecipients: len(contacts),
		PendingCount:    len(contacts),
	}
	token, err := u.issueShareToken(campaign.ID)
	if err != nil {
		log.Printf("[Campaign] Could not issue share token for %s: %v", campaign.ID, err)
	} else {
		campaign.ShareToken = token
	}
	if err := u.campaignRepo.Create(campaign); err != nil {
		return nil, err
	}

	recipients := make([]*domain.Recipient, 0, len(contacts))
	for i, contact := range contacts {
		scheduledFor := times[i]
		recipientType := contact.Type
		if recipientType == "" {
			recipientType = domain.RecipientTypeInvestor
		}
		recipients = append(recipients, &domain.Recipient{
			CampaignID:    campaign.ID,
			ClientID:      clientID,
			RecipientType: recipientType,
			ContactName:   contact.Name,
			ContactEmail:  domain.NormalizeEmail(contact.Email),
			Organization:  contact.Organization,
			MatchScore:    contact.MatchScore,
			Status:        domain.RecipientStatusPending,
			ScheduledFor:  &scheduledFor,
			CanRetry:      true,
		})
	}
	if err := u.recipientRepo.CreateBatch(recipients); err != nil {
		return nil, fmt.Errorf("create recipients: %w", err)
	}

	return campaign, nil
}

func (u *campaignUsecase) GetCampaign(id string) (*domain.Campaign, error) {
	return u.campaignRepo.FindByID(id)
}

func (u *campaignUsecase) GetCampaignByShareToken(token string) (*domain.Campaign, error) {
	campaignID, err := u.verifyShareToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid share token")
	}
	return u.campaignRepo.FindByID(campaignID)
}

func (u *campaignUsecase) Pause(id string) error {
	return u.transition(id, domain.CampaignStatusActive, domain.CampaignStatusPaused)
}

func (u *campaignUsecase) Resume(id string) error {
	return u.transition(id, domain.CampaignStatusPaused, domain.CampaignStatusActive)
}

func (u *campaignUsecase) Complete(id string) error {
	campaign, err := u.campaignRepo.FindByID(id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("campaign not found")
	}
	if campaign.Status == domain.CampaignStatusCompleted {
		return nil
	}
	_, err = u.campaignRepo.MarkCompleted(id, u.now(), domain.CampaignStatusActive, domain.CampaignStatusPaused)
	return err
}

func (u *campaignUsecase) transition(id string, from, to domain.CampaignStatus) error {
	campaign, err := u.campaignRepo.FindByID(id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fmt.Errorf("campaign not found")
	}
	if campaign.Status != from {
		return fmt.Errorf("campaign is %s, expected %s", campaign.Status, from)
	}
	return u.campaignRepo.UpdateStatus(id, to)
}

// Reschedule recomputes send times for pending recipients scheduled from the
// next calendar day onward. Today's committed schedule and non-pending
// recipients are never touched. The jitter is seeded from the campaign and
// boundary day, so invoking it twice with no intervening sends yields the
// same schedule. Returns the number of recipients rescheduled.
func (u *campaignUsecase) Reschedule(campaignID, actor string) (int, error) {
	campaign, err := u.campaignRepo.FindByID(campaignID)
	if err != nil {
		return 0, err
	}
	if campaign == nil {
		return 0, fmt.Errorf("campaign not found")
	}
	if campaign.Status == domain.CampaignStatusCompleted {
		return 0, fmt.Errorf("campaign is completed")
	}
	if err := scheduler.ValidatePolicy(campaign.Schedule); err != nil {
		return 0, fmt.Errorf("invalid schedule policy: %w", err)
	}

	loc, _ := time.LoadLocation(campaign.Schedule.Timezone)
	now := u.now().In(loc)
	boundary := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	recipients, err := u.recipientRepo.FindByCampaign(campaignID)
	if err != nil {
		return 0, err
	}

	var eligible []*domain.Recipient
	for _, r := range recipients {
		if r.Status != domain.RecipientStatusPending {
			continue
		}
		if r.ScheduledFor == nil || r.ScheduledFor.Before(boundary) {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	// Stable ordering keeps slot assignment deterministic between runs.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].ScheduledFor.Equal(*eligible[j].ScheduledFor) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].ScheduledFor.Before(*eligible[j].ScheduledFor)
	})

	var before, after time.Time
	before = *eligible[0].ScheduledFor

	rng := rand.New(rand.NewSource(rescheduleSeed(campaignID, boundary)))
	times, err := scheduler.ComputeSchedule(campaign.Schedule, len(eligible), boundary, rng)
	if err != nil {
		return 0, err
	}

	for i, r := range eligible {
		t := times[i]
		if err := u.recipientRepo.UpdateFields(r.ID, map[string]interface{}{"scheduled_for": t}); err != nil {
			return i, fmt.Errorf("reschedule recipient %s: %w", r.ID, err)
		}
	}
	after = times[0]

	if err := u.cronLogs.Append(&jobs.CronLog{
		JobName: "campaign-reschedule",
		Success: true,
		Details: fmt.Sprintf("campaign=%s actor=%s recipients=%d boundary=%s first_before=%s first_after=%s",
			campaignID, actor, len(eligible), boundary.Format(time.RFC3339), before.Format(time.RFC3339), after.Format(time.RFC3339)),
		StartedAt: u.now(),
	}); err != nil {
		log.Printf("[Campaign] Reschedule audit log failed for %s: %v", campaignID, err)
	}

	return len(eligible), nil
}

// RetryRecipient resets a failed recipient to a clean pending state for a
// fresh attempt and restores the campaign's pending/failed counters.
func (u *campaignUsecase) RetryRecipient(recipientID string) error {
	recipient, err := u.recipientRepo.FindByID(recipientID)
	if err != nil {
		return err
	}
	if recipient == nil {
		return fmt.Errorf("recipient not found")
	}
	if recipient.Status != domain.RecipientStatusFailed {
		return fmt.Errorf("recipient is %s, only failed recipients can be retried", recipient.Status)
	}

	if err := u.recipientRepo.ResetForRetry(recipientID, u.now()); err != nil {
		return err
	}

	return u.campaignRepo.IncrementCounters(recipient.CampaignID, map[string]int{
		repository.CounterFailed:  -1,
		repository.CounterPending: 1,
	})
}

func (u *campaignUsecase) issueShareToken(campaignID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": campaignID,
		"aud": "campaign-share",
		"exp": u.now().AddDate(0, 6, 0).Unix(),
		"iat": u.now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.shareSecret))
}

func (u *campaignUsecase) verifyShareToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(u.shareSecret), nil
	}, jwt.WithAudience("campaign-share"))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

func rescheduleSeed(campaignID string, boundary time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(campaignID))
	h.Write([]byte(boundary.Format("2006-01-02")))
	return int64(h.Sum64())
}
