package tools

import (
	"context"
	"fmt"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/schedule"
	"github.com/wilhg/daybook/pkg/store"
)

type getCoursesIn struct {
	Date string `json:"date,omitempty" jsonschema:"only courses on this date, YYYY-MM-DD"`
}

type courseList struct {
	Success bool             `json:"success"`
	Count   int              `json:"count"`
	Courses []courses.Course `json:"courses"`
	Message string           `json:"message"`
}

func (k kit) getCourses() agent.Tool {
	return agent.MustFuncTool("get_courses",
		"Get the user's class schedule, optionally for one date. Always call this when the user asks about classes; never invent a timetable.",
		func(ctx context.Context, in getCoursesIn) (courseList, error) {
			if in.Date != "" {
				if err := checkDate(in.Date); err != nil {
					return courseList{}, err
				}
			}
			cs, err := k.Courses.Courses(ctx, k.user, in.Date)
			if err != nil {
				return courseList{}, errmodel.Tool("course_fetch_failed", err.Error(), map[string]any{"date": in.Date})
			}
			return courseList{
				Success: true,
				Count:   len(cs),
				Courses: cs,
				Message: fmt.Sprintf("found %d courses", len(cs)),
			}, nil
		},
		agent.WithPermissions(PermCoursesRead),
	)
}

// FreePeriod is a free window in wire form.
type FreePeriod struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

type findFreeTimeIn struct {
	Date               string `json:"date" jsonschema:"day to search, YYYY-MM-DD"`
	MinDurationMinutes int    `json:"min_duration_minutes,omitempty" jsonschema:"shortest window worth reporting, in minutes"`
}

type freeTime struct {
	Date             string       `json:"date"`
	FreePeriods      []FreePeriod `json:"free_periods"`
	TotalFreeMinutes int          `json:"total_free_minutes"`
	OccupiedCount    int          `json:"occupied_count"`
	// Set when the course schedule could not be read; windows then only
	// account for tasks.
	Warning string `json:"warning,omitempty"`
}

// freeTime gathers the day's courses and timed tasks and resolves the gaps.
func (k kit) freeTime(ctx context.Context, date string, minMinutes int) (freeTime, []schedule.Window, error) {
	if err := checkDate(date); err != nil {
		return freeTime{}, nil, err
	}
	var occupied []schedule.Interval
	out := freeTime{Date: date}
	cs, err := k.Courses.Courses(ctx, k.user, date)
	if err != nil {
		out.Warning = "course schedule unavailable: " + err.Error()
	}
	for _, c := range cs {
		if iv, ok := schedule.ParsePeriods(c.Periods); ok {
			occupied = append(occupied, iv)
		}
	}
	ts, err := k.Tasks.ListTasks(ctx, k.user, store.TaskFilter{Date: date})
	if err != nil {
		return freeTime{}, nil, err
	}
	for _, t := range ts {
		if iv, ok := schedule.ParseTaskRange(t.Time); ok {
			occupied = append(occupied, iv)
		}
	}
	res := k.Resolver.Resolve(occupied, minMinutes)
	out.TotalFreeMinutes = res.TotalFreeMinutes
	out.OccupiedCount = res.OccupiedBlocks
	out.FreePeriods = make([]FreePeriod, 0, len(res.Windows))
	for _, w := range res.Windows {
		out.FreePeriods = append(out.FreePeriods, period(w))
	}
	return out, res.Windows, nil
}

func period(w schedule.Window) FreePeriod {
	return FreePeriod{Start: w.Start.String(), End: w.End.String(), DurationMinutes: w.DurationMinutes}
}

func (k kit) findFreeTime() agent.Tool {
	return agent.MustFuncTool("find_free_time",
		"Find the free windows of a day between 08:00 and 22:00, taking courses and timed tasks into account.",
		func(ctx context.Context, in findFreeTimeIn) (freeTime, error) {
			ft, _, err := k.freeTime(ctx, in.Date, in.MinDurationMinutes)
			return ft, err
		},
		agent.WithDefault("min_duration_minutes", 30),
		agent.WithRange("min_duration_minutes", 1, 840),
		agent.WithPermissions(PermCoursesRead),
	)
}

type createInFreeTimeIn struct {
	Title           string `json:"title" jsonschema:"task title"`
	Date            string `json:"date" jsonschema:"day to schedule on, YYYY-MM-DD"`
	DurationMinutes int    `json:"duration_minutes,omitempty" jsonschema:"task length in minutes"`
	Description     string `json:"description,omitempty" jsonschema:"optional details"`
	Priority        string `json:"priority,omitempty" jsonschema:"task priority"`
	PreferTime      string `json:"prefer_time,omitempty" jsonschema:"preferred start HH:MM; the closest free window is used"`
}

func (k kit) createTaskInFreeTime() agent.Tool {
	return agent.MustFuncTool("create_task_in_free_time",
		"Create a task in the first free window of a day that is long enough, or the one closest to a preferred start.",
		func(ctx context.Context, in createInFreeTimeIn) (TaskResult, error) {
			_, windows, err := k.freeTime(ctx, in.Date, in.DurationMinutes)
			if err != nil {
				return TaskResult{}, err
			}
			var preferred *schedule.Minute
			if m, ok := schedule.ParseClock(in.PreferTime); ok {
				preferred = &m
			}
			w, ok := schedule.Pick(windows, in.DurationMinutes, preferred)
			if !ok {
				return TaskResult{}, errmodel.Tool("no_free_window",
					fmt.Sprintf("no free window of at least %d minutes on %s; choose another date or a shorter duration", in.DurationMinutes, in.Date),
					map[string]any{"date": in.Date, "duration_minutes": in.DurationMinutes})
			}
			slot := schedule.Interval{Start: w.Start, End: w.Start.Add(in.DurationMinutes)}
			res, err := k.newTask(ctx, createTaskIn{
				Title:       in.Title,
				Date:        in.Date,
				Description: in.Description,
				Time:        slot.String(),
				Priority:    in.Priority,
			})
			if err != nil {
				return TaskResult{}, err
			}
			p := period(w)
			res.ScheduledInFreeTime = true
			res.FreeTimePeriod = &p
			res.Message = fmt.Sprintf("task scheduled %s in the free window %s-%s", slot, p.Start, p.End)
			return res, nil
		},
		agent.WithDefault("duration_minutes", 60),
		agent.WithRange("duration_minutes", 1, 840),
		agent.WithEnum("priority", store.PriorityHigh, store.PriorityMedium, store.PriorityLow),
		agent.WithDefault("priority", store.PriorityMedium),
		agent.WithPermissions(PermCoursesRead, PermTasksWrite),
	)
}
