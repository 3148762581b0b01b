package domain

import "time"

// FollowupStatus is the lifecycle of a follow-up email.
type FollowupStatus string

const (
	FollowupStatusScheduled FollowupStatus = "scheduled"
	FollowupStatusQueued    FollowupStatus = "queued"
	FollowupStatusSent      FollowupStatus = "sent"
	FollowupStatusDelivered FollowupStatus = "delivered"
	FollowupStatusOpened    FollowupStatus = "opened"
	FollowupStatusReplied   FollowupStatus = "replied"
	FollowupStatusFailed    FollowupStatus = "failed"
)

// FollowupTracking is the follow-up's own tracking sub-record, independent of
// the recipient's primary email history.
type FollowupTracking struct {
	OpenCount     int        `json:"open_count"`
	FirstOpenedAt *time.Time `json:"first_opened_at,omitempty"`
	LastOpenedAt  *time.Time `json:"last_opened_at,omitempty"`
	Replied       bool       `json:"replied"`
	RepliedAt     *time.Time `json:"replied_at,omitempty"`
	ReplierEmail  string     `json:"replier_email,omitempty"`
}

// FollowupEmail is a secondary send tied to a recipient but tracked
// independently so follow-up performance never corrupts original-send
// statistics.
type FollowupEmail struct {
	ID            string           `json:"id" gorm:"primaryKey"`
	RecipientID   string           `json:"recipient_id" gorm:"index;not null"`
	CampaignID    string           `json:"campaign_id" gorm:"index;not null"`
	ClientID      string           `json:"client_id" gorm:"index;not null"`
	Subject       string           `json:"subject"`
	Body          string           `json:"body"`
	Status        FollowupStatus   `json:"status" gorm:"default:scheduled;index"`
	ScheduledFor  time.Time        `json:"scheduled_for" gorm:"index"`
	TrackingToken string           `json:"tracking_token" gorm:"uniqueIndex"`
	Tracking      FollowupTracking `json:"tracking" gorm:"serializer:json"`
	MessageID     string           `json:"message_id"`
	LastError     string           `json:"last_error"`
	SentAt        *time.Time       `json:"sent_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
