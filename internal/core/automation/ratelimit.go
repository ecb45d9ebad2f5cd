package automation

import (
	"context"
	"fmt"
	"time"
)

// ExecutionCounter counts a rule's executions since a point in time
type ExecutionCounter interface {
	CountExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error)
}

// LimitDecision is the outcome of both rate gates
type LimitDecision struct {
	Allowed bool
	Reason  string
	// Remaining executions allowed today, -1 when uncapped
	Remaining int
	DayStart  time.Time
}

// RateLimiter applies the cooldown and daily cap gates
type RateLimiter struct {
	counter  ExecutionCounter
	location *time.Location
}

// NewRateLimiter creates a limiter. location is the fallback timezone for the
// daily cap when a rule has no schedule timezone.
func NewRateLimiter(counter ExecutionCounter, location *time.Location) *RateLimiter {
	if location == nil {
		location = time.UTC
	}
	return &RateLimiter{counter: counter, location: location}
}

// Check evaluates both gates against now. The caller must use the same now
// when it claims the trigger.
func (l *RateLimiter) Check(ctx context.Context, rule *Rule, now time.Time) (LimitDecision, error) {
	decision := LimitDecision{Allowed: true, Remaining: -1}

	if !CooldownElapsed(rule.LastTriggeredAt, rule.CooldownMinutes, now) {
		next := rule.LastTriggeredAt.Add(time.Duration(rule.CooldownMinutes) * time.Minute)
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("cooldown active until %s", next.UTC().Format(time.RFC3339))
		return decision, nil
	}

	decision.DayStart = StartOfDay(now, l.dayLocation(rule))
	if rule.MaxExecutionsPerDay <= 0 {
		return decision, nil
	}

	count, err := l.counter.CountExecutionsSince(ctx, rule.ID, decision.DayStart)
	if err != nil {
		return decision, err
	}
	decision.Remaining = rule.MaxExecutionsPerDay - count
	if decision.Remaining <= 0 {
		decision.Allowed = false
		decision.Remaining = 0
		decision.Reason = fmt.Sprintf("daily cap reached (%d/%d)", count, rule.MaxExecutionsPerDay)
	}
	return decision, nil
}

func (l *RateLimiter) dayLocation(rule *Rule) *time.Location {
	if rule.Schedule != nil && rule.Schedule.Timezone != "" {
		if loc, err := rule.Schedule.Location(); err == nil {
			return loc
		}
	}
	return l.location
}

// CooldownElapsed reports now >= last + cooldown; true if never triggered
func CooldownElapsed(last *time.Time, cooldownMinutes int, now time.Time) bool {
	if last == nil || cooldownMinutes <= 0 {
		return true
	}
	return !now.Before(last.Add(time.Duration(cooldownMinutes) * time.Minute))
}

// StartOfDay returns local midnight of now in loc
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
