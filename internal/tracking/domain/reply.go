package domain

import "time"

// Match types for reply attribution.
const (
	MatchTypeExact   = "exact"   // sender is the recipient's original contact address
	MatchTypeEngager = "engager" // sender previously opened or replied (forwarded reply)
)

// Reply is the persisted audit record of one matched inbound reply.
type Reply struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	CampaignID   string    `json:"campaign_id" gorm:"index;not null"`
	RecipientID  string    `json:"recipient_id" gorm:"index;not null"`
	AttemptID    string    `json:"attempt_id"`
	ReplierName  string    `json:"replier_name"`
	ReplierEmail string    `json:"replier_email" gorm:"index"`
	Organization string    `json:"organization"`
	MatchType    string    `json:"match_type"`
	Confidence   float64   `json:"confidence"`
	Subject      string    `json:"subject"`
	Snippet      string    `json:"snippet"`
	ReceivedAt   time.Time `json:"received_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProcessedMessage marks an inbound message as handled for a recipient so the
// same message seen on consecutive polling runs is not double-counted.
type ProcessedMessage struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	ClientID    string    `json:"client_id" gorm:"index;not null"`
	MessageKey  string    `json:"message_key" gorm:"index;not null"`
	RecipientID string    `json:"recipient_id" gorm:"index"`
	ProcessedAt time.Time `json:"processed_at"`
	CreatedAt   time.Time `json:"created_at"`
}
