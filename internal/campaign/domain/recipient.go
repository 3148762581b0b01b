package domain

import "time"

// RecipientStatus represents the lifecycle state of a recipient.
// Status only advances (pending -> delivered -> opened -> replied, or failed),
// except for an explicit admin retry which resets failed back to pending.
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusOpened    RecipientStatus = "opened"
	RecipientStatusReplied   RecipientStatus = "replied"
	RecipientStatusFailed    RecipientStatus = "failed"
)

// RecipientType classifies the contact audience
type RecipientType string

const (
	RecipientTypeInvestor  RecipientType = "investor"
	RecipientTypeIncubator RecipientType = "incubator"
)

// AttemptReply records a single reply attributed to one email attempt.
type AttemptReply struct {
	ReplierEmail string    `json:"replier_email"`
	ReplierName  string    `json:"replier_name,omitempty"`
	Organization string    `json:"organization,omitempty"`
	MatchType    string    `json:"match_type"`
	Confidence   float64   `json:"confidence"`
	ReceivedAt   time.Time `json:"received_at"`
}

// EmailAttempt is the per-send tracking sub-record appended to a recipient's
// email history on every successful transmission.
type EmailAttempt struct {
	AttemptID     string         `json:"attempt_id"`
	Subject       string         `json:"subject"`
	MessageID     string         `json:"message_id"`
	TrackingToken string         `json:"tracking_token"`
	SentAt        time.Time      `json:"sent_at"`
	OpenCount     int            `json:"open_count"`
	FirstOpenedAt *time.Time     `json:"first_opened_at,omitempty"`
	LastOpenedAt  *time.Time     `json:"last_opened_at,omitempty"`
	Replies       []AttemptReply `json:"replies,omitempty"`
}

// SendFailure is one classified dispatch failure. Failures are appended to a
// history list, never overwritten, so operators can see the full trajectory
// of a troubled recipient.
type SendFailure struct {
	Kind          string    `json:"kind"`
	RawMessage    string    `json:"raw_message"`
	FriendlyError string    `json:"friendly_error"`
	Attempt       int       `json:"attempt"`
	Retryable     bool      `json:"retryable"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Recipient is one contact's entire relationship with a single campaign,
// spanning possibly multiple send attempts and follow-ups.
type Recipient struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	CampaignID    string          `json:"campaign_id" gorm:"index;not null"`
	ClientID      string          `json:"client_id" gorm:"index;not null"`
	RecipientType RecipientType   `json:"recipient_type"`
	ContactName   string          `json:"contact_name"`
	ContactEmail  string          `json:"contact_email" gorm:"index;not null"`
	Organization  string          `json:"organization"`
	MatchScore    float64         `json:"match_score"`
	Status        RecipientStatus `json:"status" gorm:"default:pending;index"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty" gorm:"index"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	RepliedAt    *time.Time `json:"replied_at,omitempty"`

	TrackingToken string `json:"tracking_token" gorm:"uniqueIndex"`

	EmailHistory       []EmailAttempt     `json:"email_history" gorm:"serializer:json"`
	AggregatedTracking AggregatedTracking `json:"aggregated_tracking" gorm:"serializer:json"`

	RetryCount   int           `json:"retry_count" gorm:"default:0"`
	LastError    string        `json:"last_error"`
	CanRetry     bool          `json:"can_retry" gorm:"default:true"`
	ErrorHistory []SendFailure `json:"error_history" gorm:"serializer:json"`

	FollowupsSent    int        `json:"followups_sent" gorm:"default:0"`
	FollowupsPending int        `json:"followups_pending" gorm:"default:0"`
	LastFollowupAt   *time.Time `json:"last_followup_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LatestAttempt returns the most recent email attempt, or nil if nothing was
// ever sent to this recipient.
func (r *Recipient) LatestAttempt() *EmailAttempt {
	if len(r.EmailHistory) == 0 {
		return nil
	}
	return &r.EmailHistory[len(r.EmailHistory)-1]
}

// AttemptByID finds an attempt in the history by its id.
func (r *Recipient) AttemptByID(attemptID string) *EmailAttempt {
	for i := range r.EmailHistory {
		if r.EmailHistory[i].AttemptID == attemptID {
			return &r.EmailHistory[i]
		}
	}
	return nil
}
