// path: internal/domain/post/recurrence.go

package post

import "time"

// NextOccurrence computes the next firing instant for a recurring
// ScheduleConfig, per §4.1.4. It returns (instant, true) if the series
// continues, or (zero, false) if the post should terminate in PUBLISHED
// (pattern is ONCE, or DATE_RANGE has run past EndDate).
func NextOccurrence(cfg ScheduleConfig, after time.Time, loc *time.Location) (time.Time, bool) {
	switch cfg.Pattern {
	case PatternOnce:
		return time.Time{}, false
	case PatternWeekly:
		return nextWeekly(cfg, after, loc), true
	case PatternMonthly:
		return nextMonthly(cfg, after, loc), true
	case PatternDateRange:
		next := nextDaily(cfg, after, loc)
		if cfg.EndDate != nil && next.After(*cfg.EndDate) {
			return time.Time{}, false
		}
		return next, true
	default:
		return time.Time{}, false
	}
}

func parseTimeOfDay(s string) (hour, minute int) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	minute = int(s[3]-'0')*10 + int(s[4]-'0')
	return hour, minute
}

func nextWeekly(cfg ScheduleConfig, after time.Time, loc *time.Location) time.Time {
	hour, minute := parseTimeOfDay(cfg.Time)
	days := make(map[int]bool, len(cfg.DaysOfWeek))
	for _, d := range cfg.DaysOfWeek {
		days[d%7] = true
	}
	local := after.In(loc)
	for i := 1; i <= 7; i++ {
		candidate := local.AddDate(0, 0, i)
		if days[int(candidate.Weekday())] {
			return time.Date(candidate.Year(), candidate.Month(), candidate.Day(), hour, minute, 0, 0, loc)
		}
	}
	return after.Add(7 * 24 * time.Hour)
}

func nextMonthly(cfg ScheduleConfig, after time.Time, loc *time.Location) time.Time {
	hour, minute := parseTimeOfDay(cfg.Time)
	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), cfg.DayOfMonth, hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month()+1, cfg.DayOfMonth, hour, minute, 0, 0, loc)
	}
	return next
}

func nextDaily(cfg ScheduleConfig, after time.Time, loc *time.Location) time.Time {
	hour, minute := parseTimeOfDay(cfg.Time)
	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
