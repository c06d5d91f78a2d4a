package tools

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/courses"
	"github.com/wilhg/daybook/pkg/store/memstore"
)

var fixedNow = time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC) // a Monday

func setup(t *testing.T, user int64, src courses.Source) (*agent.Registry, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	reg := agent.NewRegistry()
	require.NoError(t, Register(reg, user, Deps{
		Tasks:    st,
		Ledger:   st,
		Courses:  src,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
	}))
	return reg, st
}

func call(t *testing.T, reg *agent.Registry, name, args string) agent.Result {
	t.Helper()
	return reg.Dispatch(context.Background(), agent.Call{ID: "c1", Name: name, Arguments: args})
}

func TestRegisterOrder(t *testing.T) {
	reg, _ := setup(t, 1, nil)
	var got []string
	for _, d := range reg.Descriptors() {
		got = append(got, d.Name)
	}
	assert.Equal(t, Names, got)
}

func TestDeclaredPermissions(t *testing.T) {
	reg, _ := setup(t, 1, nil)
	want := map[string][]string{
		"get_tasks":                {PermTasksRead},
		"create_task":              {PermTasksWrite},
		"update_task":              {PermTasksWrite},
		"delete_task":              {PermTasksWrite},
		"complete_task":            {PermTasksWrite},
		"get_transactions":         {PermLedgerRead},
		"create_transaction":       {PermLedgerWrite},
		"delete_transaction":       {PermLedgerWrite},
		"get_finance_stats":        {PermLedgerRead},
		"get_courses":              {PermCoursesRead},
		"find_free_time":           {PermCoursesRead},
		"create_task_in_free_time": {PermCoursesRead, PermTasksWrite},
		"get_current_time":         nil,
	}
	for _, d := range reg.Descriptors() {
		var got []string
		for _, p := range d.Permissions {
			got = append(got, p.Name)
		}
		assert.Equal(t, want[d.Name], got, d.Name)
	}
}

func TestReadOnlyRegistry(t *testing.T) {
	st := memstore.New()
	reg := agent.NewRegistry(agent.WithAllowedPermissions(ReadOnly...))
	require.NoError(t, Register(reg, 1, Deps{Tasks: st, Ledger: st, Now: func() time.Time { return fixedNow }, Location: time.UTC}))

	for _, name := range []string{"create_task", "delete_task", "create_transaction", "create_task_in_free_time"} {
		res := call(t, reg, name, `{}`)
		assert.False(t, res.Success, name)
		assert.Equal(t, agent.CodeForbidden, res.Code, name)
	}
	for _, name := range []string{"get_tasks", "get_transactions", "get_courses", "get_current_time"} {
		res := call(t, reg, name, `{}`)
		assert.True(t, res.Success, "%s: %s", name, res.Error)
	}
}

func TestTaskLifecycle(t *testing.T) {
	reg, _ := setup(t, 1, nil)

	res := call(t, reg, "create_task", `{"title":"Read chapter 3","date":"2025-03-03","time":"09:00-10:00","reminder_time":"2025-03-03T08:30:00"}`)
	require.True(t, res.Success, res.Error)
	task := res.Payload["task"].(map[string]any)
	assert.Equal(t, "medium", task["priority"], "priority defaults to medium")
	assert.Equal(t, "2025-03-03T08:30:00", task["reminder_time"])
	id := task["id"].(float64)

	res = call(t, reg, "get_tasks", `{"date":"2025-03-03"}`)
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 1, res.Payload["count"])

	res = call(t, reg, "complete_task", `{"task_id":`+ftoa(id)+`}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Payload["task"].(map[string]any)["completed"], "completed defaults to true")

	res = call(t, reg, "update_task", `{"task_id":`+ftoa(id)+`,"reminder_time":""}`)
	require.True(t, res.Success, res.Error)
	_, has := res.Payload["task"].(map[string]any)["reminder_time"]
	assert.False(t, has, "empty reminder_time clears the reminder")

	res = call(t, reg, "delete_task", `{"task_id":`+ftoa(id)+`}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Read chapter 3", res.Payload["task"].(map[string]any)["title"])

	res = call(t, reg, "delete_task", `{"task_id":`+ftoa(id)+`}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestTaskValidation(t *testing.T) {
	reg, _ := setup(t, 1, nil)
	cases := map[string]string{
		"bad date":      `{"title":"x","date":"03/03/2025"}`,
		"bad time":      `{"title":"x","date":"2025-03-03","time":"11:00-09:00"}`,
		"bad reminder":  `{"title":"x","date":"2025-03-03","reminder_time":"tomorrow"}`,
		"missing title": `{"date":"2025-03-03"}`,
		"bad priority":  `{"title":"x","date":"2025-03-03","priority":"urgent"}`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			res := call(t, reg, "create_task", args)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestTasksAreScopedToUser(t *testing.T) {
	st := memstore.New()
	alice, bob := agent.NewRegistry(), agent.NewRegistry()
	require.NoError(t, Register(alice, 1, Deps{Tasks: st, Ledger: st}))
	require.NoError(t, Register(bob, 2, Deps{Tasks: st, Ledger: st}))

	res := call(t, alice, "create_task", `{"title":"secret","date":"2025-03-03"}`)
	require.True(t, res.Success, res.Error)
	id := ftoa(res.Payload["task"].(map[string]any)["id"].(float64))

	res = call(t, bob, "get_tasks", `{}`)
	assert.EqualValues(t, 0, res.Payload["count"])
	res = call(t, bob, "delete_task", `{"task_id":`+id+`}`)
	assert.False(t, res.Success)
}

func TestFinanceTools(t *testing.T) {
	reg, _ := setup(t, 1, nil)
	for _, args := range []string{
		`{"type":"income","amount":500,"category":"兼职","description":"tutoring","date":"2025-03-01"}`,
		`{"type":"expense","amount":32.5,"category":"餐饮","description":"lunch","date":"2025-03-02","time":"12:10"}`,
		`{"type":"expense","amount":7.5,"category":"交通","description":"bus","date":"2025-03-03"}`,
	} {
		res := call(t, reg, "create_transaction", args)
		require.True(t, res.Success, res.Error)
	}

	res := call(t, reg, "create_transaction", `{"type":"expense","amount":0,"category":"餐饮","description":"free","date":"2025-03-02"}`)
	assert.False(t, res.Success)

	res = call(t, reg, "get_transactions", `{"type":"expense"}`)
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 2, res.Payload["count"])

	res = call(t, reg, "get_finance_stats", `{}`)
	require.True(t, res.Success, res.Error)
	stats := res.Payload["stats"].(map[string]any)
	assert.Equal(t, "2025-03", stats["month"])
	assert.EqualValues(t, 500, stats["monthlyIncome"])
	assert.EqualValues(t, 40, stats["monthlyExpense"])
	assert.EqualValues(t, 460, stats["balance"])
	assert.Len(t, stats["expenseByCategory"], 2)

	tx := call(t, reg, "get_transactions", `{"category":"交通"}`).Payload["transactions"].([]any)[0].(map[string]any)
	res = call(t, reg, "delete_transaction", `{"transaction_id":`+ftoa(tx["id"].(float64))+`}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "bus", res.Payload["transaction"].(map[string]any)["description"])
}

func TestFreeTime(t *testing.T) {
	src := courses.StaticSource{1: {{CourseName: "Physics", Date: "2025-03-03", Periods: "3"}}}
	reg, _ := setup(t, 1, src)
	require.True(t, call(t, reg, "create_task", `{"title":"gym","date":"2025-03-03","time":"09:00-10:00"}`).Success)

	res := call(t, reg, "find_free_time", `{"date":"2025-03-03"}`)
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 2, res.Payload["occupied_count"])
	assert.EqualValues(t, 60+120+480, res.Payload["total_free_minutes"])
	periods := res.Payload["free_periods"].([]any)
	require.Len(t, periods, 3)
	assert.Equal(t, map[string]any{"start": "14:00", "end": "22:00", "duration_minutes": float64(480)}, periods[2])

	res = call(t, reg, "create_task_in_free_time", `{"title":"essay","date":"2025-03-03","duration_minutes":90,"prefer_time":"13:00"}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "14:00-15:30", res.Payload["task"].(map[string]any)["time"])
	assert.Equal(t, true, res.Payload["scheduled_in_free_time"])
	assert.Equal(t, "14:00", res.Payload["free_time_period"].(map[string]any)["start"])

	res = call(t, reg, "create_task_in_free_time", `{"title":"marathon","date":"2025-03-03","duration_minutes":600}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no free window")
}

func TestFreeTimeWithoutCourses(t *testing.T) {
	src := courses.NewHTTPSource("http://127.0.0.1:1", courses.NewStaticBindings(nil))
	reg, _ := setup(t, 1, src)
	res := call(t, reg, "find_free_time", `{"date":"2025-03-03","min_duration_minutes":60}`)
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 840, res.Payload["total_free_minutes"])
	assert.NotEmpty(t, res.Payload["warning"])

	res = call(t, reg, "get_courses", `{}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "course API key")
}

func TestCurrentTime(t *testing.T) {
	reg, _ := setup(t, 1, nil)
	res := call(t, reg, "get_current_time", `{}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "2025-03-03 09:30:00", res.Payload["datetime"])
	assert.Equal(t, "Monday", res.Payload["weekday"])
	assert.EqualValues(t, 1, res.Payload["weekday_number"])

	res = call(t, reg, "get_current_time", `{"format":"time","timezone":"Asia/Shanghai"}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "17:30:00", res.Payload["time"])

	assert.Equal(t, 7, weekdayNumber(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))
}

func ftoa(f float64) string { return strconv.FormatInt(int64(f), 10) }
