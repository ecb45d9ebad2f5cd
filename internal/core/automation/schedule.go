package automation

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleType selects how a schedule window is interpreted
type ScheduleType string

const (
	ScheduleTimeRange     ScheduleType = "time_range"
	ScheduleDaysOfWeek    ScheduleType = "days_of_week"
	ScheduleSpecificDates ScheduleType = "specific_dates"
)

// Schedule restricts when a rule may trigger
type Schedule struct {
	Type      ScheduleType `json:"type" yaml:"type"`
	Timezone  string       `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	StartTime string       `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime   string       `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Days      []string     `json:"days,omitempty" yaml:"days,omitempty"`
	Dates     []string     `json:"dates,omitempty" yaml:"dates,omitempty"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Location resolves the schedule timezone; empty means UTC
func (s *Schedule) Location() (*time.Location, error) {
	if s == nil || s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// InScheduleWindow reports whether now falls inside the schedule. A nil
// schedule is always in window. Malformed schedules return an error and
// callers treat them as out of window.
func InScheduleWindow(now time.Time, s *Schedule) (bool, error) {
	if s == nil {
		return true, nil
	}
	if err := s.Validate(); err != nil {
		return false, err
	}

	loc, _ := s.Location()
	local := now.In(loc)

	switch s.Type {
	case ScheduleTimeRange:
		if len(s.Days) > 0 && !matchesWeekday(local, s.Days) {
			return false, nil
		}
		return inTimeRange(local, s.StartTime, s.EndTime), nil
	case ScheduleDaysOfWeek:
		return matchesWeekday(local, s.Days), nil
	default:
		today := local.Format("2006-01-02")
		for _, d := range s.Dates {
			if d == today {
				return true, nil
			}
		}
		return false, nil
	}
}

// Validate checks every field the schedule type uses. It never looks at the
// clock, so a schedule is either valid on every day or on none.
func (s *Schedule) Validate() error {
	if s == nil {
		return nil
	}
	if _, err := s.Location(); err != nil {
		return err
	}

	switch s.Type {
	case ScheduleTimeRange:
		if _, err := parseClock(s.StartTime); err != nil {
			return err
		}
		if _, err := parseClock(s.EndTime); err != nil {
			return err
		}
		return validateWeekdays(s.Days)
	case ScheduleDaysOfWeek:
		if len(s.Days) == 0 {
			return fmt.Errorf("days_of_week schedule has no days")
		}
		return validateWeekdays(s.Days)
	case ScheduleSpecificDates:
		if len(s.Dates) == 0 {
			return fmt.Errorf("specific_dates schedule has no dates")
		}
		for _, d := range s.Dates {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return fmt.Errorf("invalid date %q", d)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

func validateWeekdays(days []string) error {
	for _, d := range days {
		if _, ok := lookupWeekday(d); !ok {
			return fmt.Errorf("unknown weekday %q", d)
		}
	}
	return nil
}

func lookupWeekday(day string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
	return wd, ok
}

// matchesWeekday expects days that already passed validation
func matchesWeekday(local time.Time, days []string) bool {
	for _, d := range days {
		if wd, ok := lookupWeekday(d); ok && wd == local.Weekday() {
			return true
		}
	}
	return false
}

// inTimeRange handles start > end as a window spanning midnight and
// start == end as the whole day.
func inTimeRange(local time.Time, start, end string) bool {
	startOffset, _ := parseClock(start)
	endOffset, _ := parseClock(end)

	current := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	switch {
	case startOffset == endOffset:
		return true
	case startOffset < endOffset:
		return current >= startOffset && current < endOffset
	default:
		return current >= startOffset || current < endOffset
	}
}

func parseClock(value string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", value)
}
