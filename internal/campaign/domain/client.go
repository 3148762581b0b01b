package domain

import "time"

// SMTPSettings holds a client's own outbound mail credentials.
type SMTPSettings struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Security    string `json:"security"` // ssl or starttls
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address"`
}

// IMAPSettings holds a client's inbound mailbox credentials.
type IMAPSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client owns campaigns and supplies its own mail credentials and daily quota.
type Client struct {
	ID              string       `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name" gorm:"not null"`
	SMTP            SMTPSettings `json:"smtp" gorm:"serializer:json"`
	IMAP            IMAPSettings `json:"imap" gorm:"serializer:json"`
	DailyEmailLimit int          `json:"daily_email_limit" gorm:"default:100"`
	EmailsSentToday int          `json:"emails_sent_today" gorm:"default:0"`
	LastSendDate    string       `json:"last_send_date"` // YYYY-MM-DD, for daily counter reset
	Active          bool         `json:"active" gorm:"default:true"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// RemainingToday returns how many sends the client has left for the given day.
// A stale LastSendDate means the counter has not been reset yet and the full
// quota is available.
func (c *Client) RemainingToday(day string) int {
	if c.LastSendDate != day {
		return c.DailyEmailLimit
	}
	remaining := c.DailyEmailLimit - c.EmailsSentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}
