package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/mtzanidakis/agentcrew/internal/config"
)

// Trigger decides when the next sweep runs: on a cron expression when one
// is set, otherwise on a fixed interval.
type Trigger struct {
	Cron     string
	Interval time.Duration
}

func NewTrigger(cfg config.SchedulerConfig) (Trigger, error) {
	t := Trigger{Cron: strings.TrimSpace(cfg.Cron), Interval: cfg.PollInterval}
	if t.Cron != "" {
		if !gronx.New().IsValid(t.Cron) {
			return Trigger{}, fmt.Errorf("invalid cron expression: %s", t.Cron)
		}
		return t, nil
	}
	if t.Interval <= 0 {
		t.Interval = time.Minute
	}
	return t, nil
}

// Next returns the first run time strictly after now.
func (t Trigger) Next(now time.Time) time.Time {
	if t.Cron != "" {
		next, err := gronx.NextTickAfter(t.Cron, now, false)
		if err == nil {
			return next
		}
	}
	return now.Add(t.Interval)
}

// String describes the trigger for logs and the status endpoint.
func (t Trigger) String() string {
	if t.Cron != "" {
		if strings.HasPrefix(t.Cron, "@") {
			return t.Cron
		}
		return "cron: " + t.Cron
	}
	d := t.Interval
	switch {
	case d%time.Hour == 0 && d >= time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "Every hour"
		}
		return fmt.Sprintf("Every %d hours", h)
	case d%time.Minute == 0 && d >= time.Minute:
		m := int(d.Minutes())
		if m == 1 {
			return "Every minute"
		}
		return fmt.Sprintf("Every %d minutes", m)
	default:
		return fmt.Sprintf("Every %d seconds", int(d.Seconds()))
	}
}
