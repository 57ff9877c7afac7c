package app

import (
	"time"

	"code-quizzer/internal/domain"
)

const dateLayout = "2006-01-02"

// StreakChange classifies what a login did to the streak.
type StreakChange int

const (
	StreakUnchanged StreakChange = iota
	StreakIncreased
	StreakStarted
)

func (c StreakChange) String() string {
	switch c {
	case StreakIncreased:
		return "increased"
	case StreakStarted:
		return "started"
	default:
		return "unchanged"
	}
}

// LoginUpdate is the outcome of recording a login for a calendar day.
type LoginUpdate struct {
	Profile domain.Profile
	Change  StreakChange
}

// Changed reports whether the profile must be written back.
func (u LoginUpdate) Changed() bool {
	return u.Change != StreakUnchanged
}

// AdvanceStreak applies a login on the calendar day of now (in now's location)
// to the stored profile. A first login, or any gap longer than one day,
// restarts the streak at 1.
func AdvanceStreak(p domain.Profile, now time.Time) LoginUpdate {
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	p.LoginDays = dedupeDays(p.LoginDays)
	if p.LastLogin == today {
		return LoginUpdate{Profile: p, Change: StreakUnchanged}
	}

	change := StreakStarted
	if p.LastLogin != "" && p.LastLogin == yesterday && p.Streak > 0 {
		p.Streak++
		change = StreakIncreased
	} else {
		p.Streak = 1
	}
	p.LastLogin = today
	if !containsDay(p.LoginDays, today) {
		p.LoginDays = append(p.LoginDays, today)
	}
	return LoginUpdate{Profile: p, Change: change}
}

func dedupeDays(days []string) []string {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(days))
	out := make([]string, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
