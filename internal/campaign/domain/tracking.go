package domain

import (
	"strings"
	"time"
)

// Engager is one distinct person observed opening or replying to a
// recipient's emails.
type Engager struct {
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Count        int       `json:"count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// EngagementLevel classifies how warm a recipient is.
type EngagementLevel string

const (
	EngagementNone   EngagementLevel = "none"
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// AggregatedTracking is the deduplicated, cross-attempt union of everyone who
// ever opened or replied to a recipient's emails. EverOpened and EverReplied
// are monotonic: once true they never revert. Callers mutate it only through
// RecordOpen and RecordReply.
type AggregatedTracking struct {
	EverOpened  bool               `json:"ever_opened"`
	EverReplied bool               `json:"ever_replied"`
	Openers     map[string]Engager `json:"openers,omitempty"`
	Repliers    map[string]Engager `json:"repliers,omitempty"`
	Level       EngagementLevel    `json:"level"`
}

// NormalizeEmail lowercases and trims an address for use as a map key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecordOpen adds or increments an opener entry and marks EverOpened.
func (t *AggregatedTracking) RecordOpen(email, name, organization string, at time.Time) {
	t.EverOpened = true
	if t.Openers == nil {
		t.Openers = make(map[string]Engager)
	}
	addOrIncrement(t.Openers, email, name, organization, at)
	t.Level = t.computeLevel()
}

// RecordReply adds or increments a replier entry and marks EverReplied.
func (t *AggregatedTracking) RecordReply(email, name, organization string, at time.Time) {
	t.EverReplied = true
	if t.Repliers == nil {
		t.Repliers = make(map[string]Engager)
	}
	addOrIncrement(t.Repliers, email, name, organization, at)
	t.Level = t.computeLevel()
}

// HasReplier reports whether this exact person's reply was already recorded.
func (t *AggregatedTracking) HasReplier(email string) bool {
	_, ok := t.Repliers[NormalizeEmail(email)]
	return ok
}

// HasEngager reports whether the address was ever seen opening or replying.
func (t *AggregatedTracking) HasEngager(email string) bool {
	key := NormalizeEmail(email)
	if _, ok := t.Openers[key]; ok {
		return true
	}
	_, ok := t.Repliers[key]
	return ok
}

// OpenerList returns the distinct openers.
func (t *AggregatedTracking) OpenerList() []Engager {
	return engagerValues(t.Openers)
}

// ReplierList returns the distinct repliers.
func (t *AggregatedTracking) ReplierList() []Engager {
	return engagerValues(t.Repliers)
}

// TotalOpens sums open events across all distinct openers.
func (t *AggregatedTracking) TotalOpens() int {
	total := 0
	for _, e := range t.Openers {
		total += e.Count
	}
	return total
}

func (t *AggregatedTracking) computeLevel() EngagementLevel {
	switch {
	case t.EverReplied:
		return EngagementHigh
	case t.TotalOpens() > 1:
		return EngagementMedium
	case t.EverOpened:
		return EngagementLow
	default:
		return EngagementNone
	}
}

func addOrIncrement(m map[string]Engager, email, name, organization string, at time.Time) {
	key := NormalizeEmail(email)
	entry, ok := m[key]
	if !ok {
		m[key] = Engager{
			Email:        key,
			Name:         name,
			Organization: organization,
			Count:        1,
			FirstSeenAt:  at,
			LastSeenAt:   at,
		}
		return
	}
	entry.Count++
	entry.LastSeenAt = at
	if entry.Name == "" {
		entry.Name = name
	}
	if entry.Organization == "" {
		entry.Organization = organization
	}
	m[key] = entry
}

func engagerValues(m map[string]Engager) []Engager {
	if len(m) == 0 {
		return nil
	}
	values := make([]Engager, 0, len(m))
	for _, e := range m {
		values = append(values, e)
	}
	return values
}
