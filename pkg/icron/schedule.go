// Package icron wraps robfig/cron with the six-field syntax (seconds
// first) used for scheduled scans.
package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxLookback bounds the search for the previous activation.
const maxLookback = 366 * 24 * time.Hour

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New returns a cron runner that accepts the same expressions as Parse.
func New(opts ...cron.Option) *cron.Cron {
	return cron.New(append([]cron.Option{cron.WithParser(parser)}, opts...)...)
}

func Parse(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo returns the activations of cronExpr around refTime. Last
// stays zero when there was none within the preceding year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       previous(schedule, refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}

// previous returns the latest activation not after ref, doubling the
// search window until one is found.
func previous(schedule cron.Schedule, ref time.Time) time.Time {
	for window := time.Minute; window <= 2*maxLookback; window *= 2 {
		var last time.Time
		for t := schedule.Next(ref.Add(-window)); !t.IsZero() && !t.After(ref); t = schedule.Next(t) {
			last = t
		}
		if !last.IsZero() {
			return last
		}
		if window >= maxLookback {
			break
		}
	}
	return time.Time{}
}
