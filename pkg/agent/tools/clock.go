package tools

import (
	"context"
	"time"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/store"
)

type currentTimeIn struct {
	Format   string `json:"format,omitempty" jsonschema:"full, date, time or datetime"`
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA zone such as Asia/Shanghai; defaults to the server zone"`
}

func (k kit) currentTime() agent.Tool {
	return agent.MustFuncTool("get_current_time",
		"Get the current date, time, weekday and time zone.",
		func(_ context.Context, in currentTimeIn) (map[string]any, error) {
			now := k.now()
			if in.Timezone != "" {
				loc, err := time.LoadLocation(in.Timezone)
				if err != nil {
					return nil, errmodel.Validation("bad_timezone", "unknown time zone "+in.Timezone, nil)
				}
				now = now.In(loc)
			}
			return timeInfo(now, in.Format), nil
		},
		agent.WithEnum("format", "full", "date", "time", "datetime"),
		agent.WithDefault("format", "full"),
	)
}

// weekdayNumber is ISO: Monday is 1, Sunday is 7.
func weekdayNumber(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

func timeInfo(now time.Time, format string) map[string]any {
	date := now.Format(store.DateLayout)
	clock := now.Format("15:04:05")
	datetime := date + " " + clock
	switch format {
	case "date":
		return map[string]any{"success": true, "date": date, "year": now.Year(), "month": int(now.Month()), "day": now.Day(), "weekday": now.Weekday().String()}
	case "time":
		return map[string]any{"success": true, "time": clock, "hour": now.Hour(), "minute": now.Minute(), "second": now.Second()}
	case "datetime":
		return map[string]any{"success": true, "datetime": datetime, "date": date, "time": clock, "timestamp": now.Unix()}
	}
	zone, _ := now.Zone()
	return map[string]any{
		"success":        true,
		"datetime":       datetime,
		"date":           date,
		"time":           clock,
		"year":           now.Year(),
		"month":          int(now.Month()),
		"day":            now.Day(),
		"hour":           now.Hour(),
		"minute":         now.Minute(),
		"second":         now.Second(),
		"weekday":        now.Weekday().String(),
		"weekday_number": weekdayNumber(now),
		"timestamp":      now.Unix(),
		"timezone":       zone,
		"location":       now.Location().String(),
	}
}
