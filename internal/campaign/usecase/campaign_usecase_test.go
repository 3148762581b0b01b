package usecase

import (
	"errors"
	"sort"
	"testing"
	"time"

	"outreach-backend/internal/campaign/domain"
	"outreach-backend/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeCampaignRepo struct {
	campaigns map[string]*domain.Campaign
	counters  map[string]map[string]int
	snapshots map[string]domain.StatsSnapshot
	completed map[string]int
}

func newFakeCampaignRepo(campaigns ...*domain.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{
		campaigns: map[string]*domain.Campaign{},
		counters:  map[string]map[string]int{},
		snapshots: map[string]domain.StatsSnapshot{},
		completed: map[string]int{},
	}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
	}
	return repo
}

func (f *fakeCampaignRepo) Create(c *domain.Campaign) error { f.campaigns[c.ID] = c; return nil }
func (f *fakeCampaignRepo) FindByID(id string) (*domain.Campaign, error) {
	return f.campaigns[id], nil
}
func (f *fakeCampaignRepo) FindByStatuses(statuses ...domain.CampaignStatus) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range f.campaigns {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (f *fakeCampaignRepo) UpdateStatus(id string, status domain.CampaignStatus) error {
	f.campaigns[id].Status = status
	return nil
}
func (f *fakeCampaignRepo) MarkCompleted(id string, at time.Time, from ...domain.CampaignStatus) (bool, error) {
	c := f.campaigns[id]
	if len(from) == 0 {
		from = []domain.CampaignStatus{domain.CampaignStatusActive}
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = domain.CampaignStatusCompleted
			c.CompletedAt = &at
			f.completed[id]++
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeCampaignRepo) IncrementCounters(id string, deltas map[string]int) error {
	if f.counters[id] == nil {
		f.counters[id] = map[string]int{}
	}
	for k, v := range deltas {
		f.counters[id][k] += v
	}
	return nil
}
func (f *fakeCampaignRepo) SaveSnapshot(id string, snapshot domain.StatsSnapshot) error {
	f.snapshots[id] = snapshot
	f.campaigns[id].Stats = snapshot
	return nil
}

type fakeRecipientRepo struct {
	recipients map[string]*domain.Recipient
	nextID     int
}

func newFakeRecipientRepo(recipients ...*domain.Recipient) *fakeRecipientRepo {
	repo := &fakeRecipientRepo{recipients: map[string]*domain.Recipient{}}
	for _, r := range recipients {
		repo.recipients[r.ID] = r
	}
	return repo
}

func (f *fakeRecipientRepo) CreateBatch(recipients []*domain.Recipient) error {
	for _, r := range recipients {
		if r.ID == "" {
			f.nextID++
			r.ID = "r" + string(rune('0'+f.nextID))
		}
		f.recipients[r.ID] = r
	}
	return nil
}
func (f *fakeRecipientRepo) FindByID(id string) (*domain.Recipient, error) {
	return f.recipients[id], nil
}
func (f *fakeRecipientRepo) FindByCampaign(campaignID string) ([]*domain.Recipient, error) {
	var out []*domain.Recipient
	for _, r := range f.recipients {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (f *fakeRecipientRepo) FindDue(campaignIDs []string, now time.Time, limit int) ([]*domain.Recipient, error) {
	return nil, nil
}
func (f *fakeRecipientRepo) FindByTrackingToken(token string) (*domain.Recipient, error) {
	for _, r := range f.recipients {
		if r.TrackingToken == token {
			return r, nil
		}
	}
	return nil, nil
}
func (f *fakeRecipientRepo) UpdateFields(id string, fields map[string]interface{}) error {
	r, ok := f.recipients[id]
	if !ok {
		return errors.New("recipient not found")
	}
	for key, value := range fields {
		switch key {
		case "status":
			r.Status = value.(domain.RecipientStatus)
		case "scheduled_for":
			t := value.(time.Time)
			r.ScheduledFor = &t
		}
	}
	return nil
}
func (f *fakeRecipientRepo) UpdateWithLock(id string, mutate func(r *domain.Recipient) (map[string]interface{}, error)) error {
	r, ok := f.recipients[id]
	if !ok {
		return errors.New("recipient not found")
	}
	fields, err := mutate(r)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return f.UpdateFields(id, fields)
}
func (f *fakeRecipientRepo) DecrementFollowupsPending(id string) error {
	if r, ok := f.recipients[id]; ok && r.FollowupsPending > 0 {
		r.FollowupsPending--
	}
	return nil
}
func (f *fakeRecipientRepo) ResetForRetry(id string, scheduledFor time.Time) error {
	r := f.recipients[id]
	r.Status = domain.RecipientStatusPending
	r.ScheduledFor = &scheduledFor
	r.RetryCount = 0
	r.LastError = ""
	r.CanRetry = true
	r.SentAt = nil
	r.DeliveredAt = nil
	return nil
}

type fakeCronLogs struct {
	entries []*jobs.CronLog
}

func (f *fakeCronLogs) Append(entry *jobs.CronLog) error {
	f.entries = append(f.entries, entry)
	return nil
}
func (f *fakeCronLogs) FindByJob(jobName string, limit int) ([]*jobs.CronLog, error) {
	var out []*jobs.CronLog
	for _, e := range f.entries {
		if e.JobName == jobName {
			out = append(out, e)
		}
	}
	return out, nil
}

func testPolicy() domain.SchedulePolicy {
	return domain.SchedulePolicy{
		DailyLimit:  2,
		WindowStart: "10:00",
		WindowEnd:   "16:00",
		Timezone:    "Asia/Kolkata",
	}
}

func newTestUsecase(campaigns *fakeCampaignRepo, recipients *fakeRecipientRepo, logs *fakeCronLogs, now time.Time) *campaignUsecase {
	uc := NewCampaignUsecase(campaigns, recipients, logs, "test-secret").(*campaignUsecase)
	uc.now = func() time.Time { return now }
	return uc
}

// --- tests ---

func TestCreateCampaignSchedulesAllRecipients(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Date(2026, 8, 31, 8, 0, 0, 0, loc) // Monday, before window

	campaigns := newFakeCampaignRepo()
	recipients := newFakeRecipientRepo()
	uc := newTestUsecase(campaigns, recipients, &fakeCronLogs{}, now)

	contacts := []ContactInput{
		{Name: "A", Email: "A@x.com"},
		{Name: "B", Email: "b@x.com"},
		{Name: "C", Email: "c@x.com"},
		{Name: "D", Email: "d@x.com"},
		{Name: "E", Email: "e@x.com"},
	}

	campaign, err := uc.CreateCampaign("client-1", "Seed round", "Intro", "<p>Hi</p>", nil, testPolicy(), contacts)
	require.NoError(t, err)
	require.NotNil(t, campaign)

	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)
	assert.Equal(t, 5, campaign.TotalRecipients)
	assert.Equal(t, 5, campaign.PendingCount)
	assert.NotEmpty(t, campaign.ShareToken)

	created, _ := recipients.FindByCampaign(campaign.ID)
	require.Len(t, created, 5)

	// A daily limit of 2 spreads 5 sends over three days.
	perDay := map[string]int{}
	for _, r := range created {
		require.NotNil(t, r.ScheduledFor)
		perDay[r.ScheduledFor.In(loc).Format("2006-01-02")]++
		assert.Equal(t, domain.RecipientStatusPending, r.Status)
	}
	assert.Equal(t, map[string]int{"2026-08-31": 2, "2026-09-01": 2, "2026-09-02": 1}, perDay)

	// Contact emails are normalized at intake.
	assert.Equal(t, "a@x.com", created[0].ContactEmail)

	// The share token issued at creation resolves back to the campaign.
	shared, err := uc.GetCampaignByShareToken(campaign.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, campaign.ID, shared.ID)
}

func TestCreateCampaignRejectsBadInput(t *testing.T) {
	uc := newTestUsecase(newFakeCampaignRepo(), newFakeRecipientRepo(), &fakeCronLogs{}, time.Now())

	_, err := uc.CreateCampaign("client-1", "x", "s", "b", nil, testPolicy(), nil)
	assert.Error(t, err, "no contacts")

	bad := testPolicy()
	bad.DailyLimit = 0
	_, err = uc.CreateCampaign("client-1", "x", "s", "b", nil, bad, []ContactInput{{Email: "a@x.com"}})
	assert.Error(t, err, "invalid policy")
}

func TestGetCampaignByShareTokenRejectsForgeries(t *testing.T) {
	uc := newTestUsecase(newFakeCampaignRepo(), newFakeRecipientRepo(), &fakeCronLogs{}, time.Now())

	_, err := uc.GetCampaignByShareToken("not-a-token")
	assert.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	now := time.Now()
	campaign := &domain.Campaign{ID: "camp-1", Status: domain.CampaignStatusActive}
	campaigns := newFakeCampaignRepo(campaign)
	uc := newTestUsecase(campaigns, newFakeRecipientRepo(), &fakeCronLogs{}, now)

	// Pausing a paused campaign is rejected.
	require.NoError(t, uc.Pause("camp-1"))
	assert.Equal(t, domain.CampaignStatusPaused, campaign.Status)
	assert.Error(t, uc.Pause("camp-1"))

	require.NoError(t, uc.Resume("camp-1"))
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status)

	require.NoError(t, uc.Complete("camp-1"))
	assert.Equal(t, domain.CampaignStatusCompleted, campaign.Status)

	// Completion is terminal and idempotent.
	require.NoError(t, uc.Complete("camp-1"))
	assert.Error(t, uc.Resume("camp-1"))
	assert.Equal(t, 1, campaigns.completed["camp-1"])
}

func TestRescheduleOnlyMovesFutureDayPendings(t *testing.T) {
	policy := domain.SchedulePolicy{DailyLimit: 2, WindowStart: "09:00", WindowEnd: "17:00", Timezone: "UTC"}
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	boundary := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)

	campaign := &domain.Campaign{ID: "camp-1", Status: domain.CampaignStatusActive, Schedule: policy}

	today := now.Add(time.Hour)
	tomorrow := boundary.Add(10 * time.Hour)
	dayAfter := boundary.Add(34 * time.Hour)

	r1 := &domain.Recipient{ID: "r1", CampaignID: "camp-1", Status: domain.RecipientStatusPending, ScheduledFor: &today}
	r2 := &domain.Recipient{ID: "r2", CampaignID: "camp-1", Status: domain.RecipientStatusPending, ScheduledFor: &tomorrow}
	r3 := &domain.Recipient{ID: "r3", CampaignID: "camp-1", Status: domain.RecipientStatusPending, ScheduledFor: &dayAfter}
	r4 := &domain.Recipient{ID: "r4", CampaignID: "camp-1", Status: domain.RecipientStatusDelivered, ScheduledFor: &tomorrow}

	campaigns := newFakeCampaignRepo(campaign)
	recipients := newFakeRecipientRepo(r1, r2, r3, r4)
	logs := &fakeCronLogs{}
	uc := newTestUsecase(campaigns, recipients, logs, now)

	count, err := uc.Reschedule("camp-1", "ops@agency.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Today's committed slot and the delivered recipient are untouched.
	assert.Equal(t, today, *r1.ScheduledFor)
	assert.Equal(t, tomorrow, *r4.ScheduledFor)

	// Moved recipients land on or after the next-day boundary.
	assert.False(t, r2.ScheduledFor.Before(boundary))
	assert.False(t, r3.ScheduledFor.Before(boundary))

	// An audit entry is written.
	require.Len(t, logs.entries, 1)
	assert.Equal(t, "campaign-reschedule", logs.entries[0].JobName)
	assert.Contains(t, logs.entries[0].Details, "ops@agency.com")

	// Running again with no intervening sends yields the identical schedule.
	firstR2, firstR3 := *r2.ScheduledFor, *r3.ScheduledFor
	count, err = uc.Reschedule("camp-1", "ops@agency.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, firstR2, *r2.ScheduledFor)
	assert.Equal(t, firstR3, *r3.ScheduledFor)
}

func TestRescheduleRejectsCompletedCampaign(t *testing.T) {
	campaign := &domain.Campaign{ID: "camp-1", Status: domain.CampaignStatusCompleted, Schedule: testPolicy()}
	uc := newTestUsecase(newFakeCampaignRepo(campaign), newFakeRecipientRepo(), &fakeCronLogs{}, time.Now())

	_, err := uc.Reschedule("camp-1", "ops")
	assert.Error(t, err)
}

func TestRetryRecipientResetsFailureState(t *testing.T) {
	now := time.Now()
	failed := &domain.Recipient{
		ID:         "r1",
		CampaignID: "camp-1",
		Status:     domain.RecipientStatusFailed,
		RetryCount: 3,
		LastError:  "timeout",
		CanRetry:   false,
		ErrorHistory: []domain.SendFailure{
			{Kind: "timeout", Attempt: 1}, {Kind: "timeout", Attempt: 2}, {Kind: "timeout", Attempt: 3},
		},
	}
	campaigns := newFakeCampaignRepo(&domain.Campaign{ID: "camp-1", Status: domain.CampaignStatusActive})
	recipients := newFakeRecipientRepo(failed)
	uc := newTestUsecase(campaigns, recipients, &fakeCronLogs{}, now)

	require.NoError(t, uc.RetryRecipient("r1"))

	assert.Equal(t, domain.RecipientStatusPending, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)
	assert.True(t, failed.CanRetry)
	assert.Empty(t, failed.LastError)
	// The error history is preserved for audit.
	assert.Len(t, failed.ErrorHistory, 3)

	assert.Equal(t, -1, campaigns.counters["camp-1"]["failed_count"])
	assert.Equal(t, 1, campaigns.counters["camp-1"]["pending_count"])

	// Only failed recipients can be retried.
	assert.Error(t, uc.RetryRecipient("r1"))
}
