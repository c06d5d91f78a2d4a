// Package tools holds the assistant's domain tools. Every tool is bound to one
// acting user when it is registered and never touches another user's data.
package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/schedule"
	"github.com/wilhg/daybook/pkg/store"
)

// Permissions the tools declare. A registry built with
// agent.WithAllowedPermissions only dispatches tools whose permissions it grants.
const (
	PermTasksRead   = "tasks:read"
	PermTasksWrite  = "tasks:write"
	PermLedgerRead  = "ledger:read"
	PermLedgerWrite = "ledger:write"
	PermCoursesRead = "courses:read"
)

// ReadOnly grants every read permission and nothing that changes data.
var ReadOnly = []string{PermTasksRead, PermLedgerRead, PermCoursesRead}

// Deps are the collaborators the tools act through.
type Deps struct {
	Tasks   store.TaskStore
	Ledger  store.LedgerStore
	Courses courses.Source
	// Now defaults to time.Now and Location to time.Local.
	Now      func() time.Time
	Location *time.Location
	// Resolver defaults to schedule.DefaultResolver.
	Resolver *schedule.Resolver
}

type kit struct {
	Deps
	user int64
}

func (k kit) now() time.Time {
	return k.Now().In(k.Location)
}

// Register adds every tool for userID to reg, in the order the model sees them.
func Register(reg *agent.Registry, userID int64, d Deps) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Resolver == nil {
		r := schedule.DefaultResolver
		d.Resolver = &r
	}
	if d.Courses == nil {
		d.Courses = courses.StaticSource{}
	}
	k := kit{Deps: d, user: userID}
	all := []agent.Tool{
		k.getTasks(), k.createTask(), k.updateTask(), k.deleteTask(), k.completeTask(),
		k.getTransactions(), k.createTransaction(), k.deleteTransaction(), k.financeStats(),
		k.getCourses(), k.findFreeTime(), k.createTaskInFreeTime(), k.currentTime(),
	}
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register tools for user %d: %w", userID, err)
		}
	}
	return nil
}

// Names lists the tool names in registration order.
var Names = []string{
	"get_tasks", "create_task", "update_task", "delete_task", "complete_task",
	"get_transactions", "create_transaction", "delete_transaction", "get_finance_stats",
	"get_courses", "find_free_time", "create_task_in_free_time", "get_current_time",
}

func checkDate(s string) error {
	if _, err := time.Parse(store.DateLayout, s); err != nil {
		return errmodel.Validation("bad_date", "invalid date format, expected YYYY-MM-DD", map[string]any{"date": s})
	}
	return nil
}

// parseReminder accepts ISO-8601 date-times with or without an offset; times
// without one are read in loc.
func parseReminder(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errmodel.Validation("bad_reminder_time", "invalid reminder time format, expected YYYY-MM-DDTHH:MM:SS", map[string]any{"reminder_time": s})
}

func notFound(kind string, id int64) error {
	return errmodel.NotFound(kind+" not found or not owned by the current user", map[string]any{"id": id})
}
