package mailer

import (
	"errors"
	"net"
	"strings"

	"github.com/emersion/go-smtp"
)

// ErrorKind is the fixed taxonomy of send failures.
type ErrorKind string

const (
	KindAuthFailed       ErrorKind = "auth_failed"
	KindInvalidRecipient ErrorKind = "invalid_recipient"
	KindTimeout          ErrorKind = "timeout"
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindContentBlocked   ErrorKind = "content_blocked"
	KindTransportError   ErrorKind = "transport_error"
	KindUnknown          ErrorKind = "unknown"
)

// Classify maps a transport error onto the taxonomy. SMTP status codes take
// precedence over string heuristics.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch smtpErr.Code {
		case 530, 534, 535, 538:
			return KindAuthFailed
		case 550, 551, 553:
			if containsAny(smtpErr.Message, "spam", "blocked", "content", "policy") {
				return KindContentBlocked
			}
			return KindInvalidRecipient
		case 421, 450, 452:
			return KindQuotaExceeded
		case 554:
			return KindContentBlocked
		default:
			return KindTransportError
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "auth", "credentials", "password"):
		return KindAuthFailed
	case containsAny(msg, "no such user", "user unknown", "does not exist", "recipient rejected", "invalid recipient"):
		return KindInvalidRecipient
	case containsAny(msg, "quota", "rate limit", "too many"):
		return KindQuotaExceeded
	case containsAny(msg, "spam", "blocked", "blacklist"):
		return KindContentBlocked
	case containsAny(msg, "connection", "broken pipe", "eof", "reset by peer"):
		return KindTransportError
	}
	return KindUnknown
}

// Retryable reports whether a failure of this kind may resolve on retry.
// Auth failures and invalid recipients indicate a configuration or address
// problem that will not fix itself.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAuthFailed, KindInvalidRecipient:
		return false
	default:
		return true
	}
}

// FriendlyMessage returns the operator-facing description stored with each
// failure.
func (k ErrorKind) FriendlyMessage() string {
	switch k {
	case KindAuthFailed:
		return "Email account authentication failed. Check the client's SMTP username and password."
	case KindInvalidRecipient:
		return "The recipient address was rejected by the mail server. The address may not exist."
	case KindTimeout:
		return "The mail server took too long to respond. The send will be retried."
	case KindQuotaExceeded:
		return "The mail server's sending quota was exceeded. The send will be retried later."
	case KindContentBlocked:
		return "The message was blocked by the mail server's content or spam filter."
	case KindTransportError:
		return "A temporary connection problem interrupted the send. It will be retried."
	default:
		return "The send failed for an unknown reason."
	}
}

func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
