// Package scheduler computes per-recipient send timestamps for a campaign's
// pacing policy: a daily cap, a sending-hour window in a fixed timezone, and
// an optional weekend pause.
package scheduler

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"outreach-backend/internal/campaign/domain"
)

// jitterRange bounds the random offset applied to each nominal slot so
// outbound traffic is not perfectly periodic.
const jitterRange = 30 * time.Second

// ValidatePolicy rejects configurations that cannot produce a schedule.
func ValidatePolicy(policy domain.SchedulePolicy) error {
	if policy.DailyLimit < 1 {
		return fmt.Errorf("daily limit must be at least 1, got %d", policy.DailyLimit)
	}
	start, err := parseClock(policy.WindowStart)
	if err != nil {
		return fmt.Errorf("invalid window start %q: %v", policy.WindowStart, err)
	}
	end, err := parseClock(policy.WindowEnd)
	if err != nil {
		return fmt.Errorf("invalid window end %q: %v", policy.WindowEnd, err)
	}
	if end <= start {
		return fmt.Errorf("window end %q must be after window start %q", policy.WindowEnd, policy.WindowStart)
	}
	if _, err := time.LoadLocation(policy.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %v", policy.Timezone, err)
	}
	return nil
}

// ComputeSchedule assigns count timestamps starting no earlier than from.
// No calendar day receives more than policy.DailyLimit timestamps, timestamps
// strictly increase, and consecutive slots are windowMinutes/dailyLimit apart
// (floored, minimum one minute) plus bounded jitter. The rng drives the
// jitter; callers that need idempotent output seed it deterministically.
func ComputeSchedule(policy domain.SchedulePolicy, count int, from time.Time, rng *rand.Rand) ([]time.Time, error) {
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	loc, _ := time.LoadLocation(policy.Timezone)
	startMinutes, _ := parseClock(policy.WindowStart)
	endMinutes, _ := parseClock(policy.WindowEnd)

	windowMinutes := endMinutes - startMinutes
	intervalMinutes := windowMinutes / policy.DailyLimit
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}
	interval := time.Duration(intervalMinutes) * time.Minute

	from = from.In(loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	times := make([]time.Time, 0, count)
	for len(times) < count {
		if policy.PauseOnWeekends && isWeekend(day) {
			day = day.AddDate(0, 0, 1)
			continue
		}

		windowStart := day.Add(time.Duration(startMinutes) * time.Minute)
		windowEnd := day.Add(time.Duration(endMinutes) * time.Minute)

		for slot := 0; slot < policy.DailyLimit && len(times) < count; slot++ {
			nominal := windowStart.Add(time.Duration(slot) * interval)
			if nominal.After(windowEnd) {
				break // window time exhausted
			}
			if nominal.Before(from) {
				continue // slot already in the past on the first day
			}

			t := nominal.Add(jitter(rng))
			// Jitter must not move a slot onto a different calendar day.
			if t.In(loc).Day() != nominal.Day() {
				t = nominal
			}
			// Nor into the past: a negative draw on the first eligible slot
			// must not schedule a send before the starting instant.
			if t.Before(from) {
				t = from
			}
			if len(times) > 0 && !t.After(times[len(times)-1]) {
				t = times[len(times)-1].Add(time.Second)
			}
			times = append(times, t)
		}

		day = day.AddDate(0, 0, 1)
	}

	return times, nil
}

func jitter(rng *rand.Rand) time.Duration {
	if rng == nil {
		return 0
	}
	span := int64(2 * jitterRange)
	return time.Duration(rng.Int63n(span)) - jitterRange
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func parseClock(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("bad hour component")
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("bad minute component")
	}
	return hours*60 + minutes, nil
}
