package usecase

import (
	"errors"
	"fmt"
	"sort"
	"time"

	campaigndomain "outreach-backend/internal/campaign/domain"
	followupdomain "outreach-backend/internal/followup/domain"
	trackingdomain "outreach-backend/internal/tracking/domain"
	"outreach-backend/pkg/mailbox"
)

type fakeCampaignRepo struct {
	campaigns map[string]*campaigndomain.Campaign
	counters  map[string]map[string]int
}

func newFakeCampaignRepo(campaigns ...*campaigndomain.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{
		campaigns: map[string]*campaigndomain.Campaign{},
		counters:  map[string]map[string]int{},
	}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
	}
	return repo
}

func (f *fakeCampaignRepo) Create(c *campaigndomain.Campaign) error { f.campaigns[c.ID] = c; return nil }
func (f *fakeCampaignRepo) FindByID(id string) (*campaigndomain.Campaign, error) {
	return f.campaigns[id], nil
}
func (f *fakeCampaignRepo) FindByStatuses(statuses ...campaigndomain.CampaignStatus) ([]*campaigndomain.Campaign, error) {
	var out []*campaigndomain.Campaign
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
func (f *fakeCampaignRepo) UpdateStatus(id string, status campaigndomain.CampaignStatus) error {
	f.campaigns[id].Status = status
	return nil
}
func (f *fakeCampaignRepo) MarkCompleted(id string, at time.Time, from ...campaigndomain.CampaignStatus) (bool, error) {
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
func (f *fakeCampaignRepo) SaveSnapshot(id string, snapshot campaigndomain.StatsSnapshot) error {
	f.campaigns[id].Stats = snapshot
	return nil
}

type fakeRecipientRepo struct {
	recipients map[string]*campaigndomain.Recipient

	// beforeLock runs at the start of UpdateWithLock, standing in for a
	// concurrent writer that commits between a caller's read and its locked
	// re-read.
	beforeLock func()
	failLocks  int
}

func newFakeRecipientRepo(recipients ...*campaigndomain.Recipient) *fakeRecipientRepo {
	repo := &fakeRecipientRepo{recipients: map[string]*campaigndomain.Recipient{}}
	for _, r := range recipients {
		repo.recipients[r.ID] = r
	}
	return repo
}

// Reads hand out copies, the way a store does: later changes to the stored
// row are invisible to a snapshot a caller is still holding.
func cloneRecipient(r *campaigndomain.Recipient) *campaigndomain.Recipient {
	c := *r
	c.EmailHistory = make([]campaigndomain.EmailAttempt, len(r.EmailHistory))
	for i, attempt := range r.EmailHistory {
		attempt.Replies = append([]campaigndomain.AttemptReply(nil), attempt.Replies...)
		c.EmailHistory[i] = attempt
	}
	c.ErrorHistory = append([]campaigndomain.SendFailure(nil), r.ErrorHistory...)
	c.AggregatedTracking = cloneTracking(r.AggregatedTracking)
	return &c
}

func cloneTracking(t campaigndomain.AggregatedTracking) campaigndomain.AggregatedTracking {
	c := t
	if t.Openers != nil {
		c.Openers = make(map[string]campaigndomain.Engager, len(t.Openers))
		for k, v := range t.Openers {
			c.Openers[k] = v
		}
	}
	if t.Repliers != nil {
		c.Repliers = make(map[string]campaigndomain.Engager, len(t.Repliers))
		for k, v := range t.Repliers {
			c.Repliers[k] = v
		}
	}
	return c
}

func (f *fakeRecipientRepo) CreateBatch(recipients []*campaigndomain.Recipient) error {
	for _, r := range recipients {
		f.recipients[r.ID] = r
	}
	return nil
}
func (f *fakeRecipientRepo) FindByID(id string) (*campaigndomain.Recipient, error) {
	return f.recipients[id], nil
}
func (f *fakeRecipientRepo) FindByCampaign(campaignID string) ([]*campaigndomain.Recipient, error) {
	var out []*campaigndomain.Recipient
	for _, r := range f.recipients {
		if r.CampaignID == campaignID {
			out = append(out, cloneRecipient(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
func (f *fakeRecipientRepo) FindDue(campaignIDs []string, now time.Time, limit int) ([]*campaigndomain.Recipient, error) {
	return nil, nil
}
func (f *fakeRecipientRepo) FindByTrackingToken(token string) (*campaigndomain.Recipient, error) {
	for _, r := range f.recipients {
		if r.TrackingToken == token {
			return cloneRecipient(r), nil
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
			r.Status = value.(campaigndomain.RecipientStatus)
		case "opened_at":
			t := value.(time.Time)
			r.OpenedAt = &t
		case "replied_at":
			t := value.(time.Time)
			r.RepliedAt = &t
		case "email_history":
			r.EmailHistory = value.([]campaigndomain.EmailAttempt)
		case "aggregated_tracking":
			r.AggregatedTracking = value.(campaigndomain.AggregatedTracking)
		}
	}
	return nil
}
func (f *fakeRecipientRepo) UpdateWithLock(id string, mutate func(r *campaigndomain.Recipient) (map[string]interface{}, error)) error {
	if f.beforeLock != nil {
		f.beforeLock()
	}
	if f.failLocks > 0 {
		f.failLocks--
		return errors.New("store temporarily unavailable")
	}
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
func (f *fakeRecipientRepo) ResetForRetry(id string, scheduledFor time.Time) error { return nil }

type fakeClientRepo struct {
	clients map[string]*campaigndomain.Client
}

func newFakeClientRepo(clients ...*campaigndomain.Client) *fakeClientRepo {
	repo := &fakeClientRepo{clients: map[string]*campaigndomain.Client{}}
	for _, c := range clients {
		repo.clients[c.ID] = c
	}
	return repo
}

func (f *fakeClientRepo) FindByID(id string) (*campaigndomain.Client, error) { return f.clients[id], nil }
func (f *fakeClientRepo) FindByIDs(ids []string) ([]*campaigndomain.Client, error) {
	var out []*campaigndomain.Client
	for _, id := range ids {
		if c, ok := f.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeClientRepo) RegisterSends(id string, day string, n int) error { return nil }

type fakeFollowupRepo struct {
	followups  map[string]*followupdomain.FollowupEmail
	beforeLock func()
}

func newFakeFollowupRepo(followups ...*followupdomain.FollowupEmail) *fakeFollowupRepo {
	repo := &fakeFollowupRepo{followups: map[string]*followupdomain.FollowupEmail{}}
	for _, f := range followups {
		repo.followups[f.ID] = f
	}
	return repo
}

func (f *fakeFollowupRepo) Create(followup *followupdomain.FollowupEmail) error {
	if followup.ID == "" {
		followup.ID = fmt.Sprintf("fu-%d", len(f.followups)+1)
	}
	f.followups[followup.ID] = followup
	return nil
}
func (f *fakeFollowupRepo) FindByID(id string) (*followupdomain.FollowupEmail, error) {
	return f.followups[id], nil
}
func (f *fakeFollowupRepo) FindDue(now time.Time, limit int) ([]*followupdomain.FollowupEmail, error) {
	return nil, nil
}
func (f *fakeFollowupRepo) FindByRecipient(recipientID string) ([]*followupdomain.FollowupEmail, error) {
	var out []*followupdomain.FollowupEmail
	for _, fu := range f.followups {
		if fu.RecipientID == recipientID {
			out = append(out, fu)
		}
	}
	return out, nil
}
func (f *fakeFollowupRepo) FindByTrackingToken(token string) (*followupdomain.FollowupEmail, error) {
	for _, fu := range f.followups {
		if fu.TrackingToken == token {
			return fu, nil
		}
	}
	return nil, nil
}
func (f *fakeFollowupRepo) UpdateFields(id string, fields map[string]interface{}) error {
	fu, ok := f.followups[id]
	if !ok {
		return errors.New("followup not found")
	}
	for key, value := range fields {
		switch key {
		case "status":
			fu.Status = value.(followupdomain.FollowupStatus)
		case "tracking":
			fu.Tracking = value.(followupdomain.FollowupTracking)
		}
	}
	return nil
}
func (f *fakeFollowupRepo) UpdateWithLock(id string, mutate func(fu *followupdomain.FollowupEmail) (map[string]interface{}, error)) error {
	if f.beforeLock != nil {
		f.beforeLock()
	}
	fu, ok := f.followups[id]
	if !ok {
		return errors.New("followup not found")
	}
	fields, err := mutate(fu)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return f.UpdateFields(id, fields)
}

type fakeReplyRepo struct {
	replies []*trackingdomain.Reply
}

func (f *fakeReplyRepo) Create(reply *trackingdomain.Reply) error {
	f.replies = append(f.replies, reply)
	return nil
}
func (f *fakeReplyRepo) FindByCampaign(campaignID string) ([]*trackingdomain.Reply, error) {
	var out []*trackingdomain.Reply
	for _, r := range f.replies {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeProcessedRepo struct {
	seen map[string]bool
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{seen: map[string]bool{}}
}

func (f *fakeProcessedRepo) IsProcessed(clientID, messageKey string) (bool, error) {
	return f.seen[clientID+"|"+messageKey], nil
}

func (f *fakeProcessedRepo) EnsureProcessed(clientID, messageKey, recipientID string) (bool, error) {
	key := clientID + "|" + messageKey
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

type fakeMailboxReader struct {
	messages []mailbox.InboundMessage
	err      error
}

func (f *fakeMailboxReader) FetchSince(settings mailbox.Settings, since time.Time) ([]mailbox.InboundMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}
