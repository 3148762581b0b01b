package domain

import "time"

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// SchedulePolicy controls how sends are paced across days.
type SchedulePolicy struct {
	DailyLimit      int    `json:"daily_limit"`
	WindowStart     string `json:"window_start"` // HH:MM
	WindowEnd       string `json:"window_end"`   // HH:MM
	Timezone        string `json:"timezone"`
	PauseOnWeekends bool   `json:"pause_on_weekends"`
}

// StatsSnapshot is the aggregator's authoritative recomputation of campaign
// counters. The inline columns on Campaign are a fast-path cache of the same
// numbers; readers of those columns must tolerate eventual consistency with
// this snapshot. It is a pure function of recipient state, so recomputing
// over unchanged recipients yields an identical value; Campaign.UpdatedAt
// records when the last recomputation ran.
type StatsSnapshot struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
	Replied   int `json:"replied"`
	Failed    int `json:"failed"`

	UniqueOpeners  int `json:"unique_openers"`
	UniqueRepliers int `json:"unique_repliers"`

	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ReplyRate    float64 `json:"reply_rate"`

	DeliveredNotOpened int `json:"delivered_not_opened"`
	OpenedNotReplied   int `json:"opened_not_replied"`
	OpenedOnce         int `json:"opened_once"`
	OpenedMultiple     int `json:"opened_multiple"`
}

// Exhausted reports whether every recipient reached a terminal outcome: no
// sends remain pending and everything else either went out or failed.
func (s StatsSnapshot) Exhausted() bool {
	return s.Total > 0 && s.Pending == 0 && s.Sent+s.Failed == s.Total
}

// Campaign identifies a client's outreach run.
type Campaign struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	ClientID       string         `json:"client_id" gorm:"index;not null"`
	Name           string         `json:"name" gorm:"not null"`
	RecipientTypes []string       `json:"recipient_types" gorm:"serializer:json"`
	Status         CampaignStatus `json:"status" gorm:"default:active;index"`
	EmailSubject   string         `json:"email_subject"`
	EmailBody      string         `json:"email_body"`
	Schedule       SchedulePolicy `json:"schedule" gorm:"serializer:json"`
	Stats          StatsSnapshot  `json:"stats" gorm:"serializer:json"`
	ShareToken     string         `json:"share_token"`

	// Fast-path counters, updated incrementally by the dispatch worker,
	// open tracker and reply matcher. The stats aggregator recomputes them
	// from recipient state.
	TotalRecipients    int `json:"total_recipients" gorm:"default:0"`
	PendingCount       int `json:"pending_count" gorm:"default:0"`
	SentCount          int `json:"sent_count" gorm:"default:0"`
	DeliveredCount     int `json:"delivered_count" gorm:"default:0"`
	OpenedCount        int `json:"opened_count" gorm:"default:0"`
	RepliedCount       int `json:"replied_count" gorm:"default:0"`
	FailedCount        int `json:"failed_count" gorm:"default:0"`
	DeliveredNotOpened int `json:"delivered_not_opened" gorm:"default:0"`
	OpenedNotReplied   int `json:"opened_not_replied" gorm:"default:0"`

	// Follow-up funnel, segregated from the primary send statistics.
	FollowupsQueued  int `json:"followups_queued" gorm:"default:0"`
	FollowupsSent    int `json:"followups_sent" gorm:"default:0"`
	FollowupsOpened  int `json:"followups_opened" gorm:"default:0"`
	FollowupsReplied int `json:"followups_replied" gorm:"default:0"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
