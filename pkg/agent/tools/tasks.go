package tools

import (
	"context"
	"errors"
	"time"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/schedule"
	"github.com/wilhg/daybook/pkg/store"
)

// TaskView is a task as the model sees it.
type TaskView struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Completed    bool   `json:"completed"`
	Priority     string `json:"priority"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	HasReminder  bool   `json:"has_reminder"`
	ReminderTime string `json:"reminder_time,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func viewTask(t store.Task, loc *time.Location) TaskView {
	v := TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		Date:        t.Date,
		Time:        t.Time,
		HasReminder: t.HasReminder,
		CreatedAt:   t.CreatedAt.In(loc).Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.In(loc).Format(time.RFC3339),
	}
	if t.ReminderTime != nil {
		v.ReminderTime = t.ReminderTime.In(loc).Format("2006-01-02T15:04:05")
	}
	return v
}

type getTasksIn struct {
	Date        string `json:"date,omitempty" jsonschema:"filter by date, YYYY-MM-DD"`
	Completed   *bool  `json:"completed,omitempty" jsonschema:"true for finished tasks, false for open ones"`
	Priority    string `json:"priority,omitempty" jsonschema:"filter by priority"`
	HasReminder *bool  `json:"has_reminder,omitempty" jsonschema:"filter by whether a reminder is set"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of tasks to return"`
}

type taskList struct {
	Count int        `json:"count"`
	Tasks []TaskView `json:"tasks"`
}

func (k kit) getTasks() agent.Tool {
	return agent.MustFuncTool("get_tasks",
		"List the user's tasks, optionally filtered by date, completion, priority or reminder.",
		func(ctx context.Context, in getTasksIn) (taskList, error) {
			if in.Date != "" {
				if err := checkDate(in.Date); err != nil {
					return taskList{}, err
				}
			}
			ts, err := k.Tasks.ListTasks(ctx, k.user, store.TaskFilter{
				Date:        in.Date,
				Completed:   in.Completed,
				Priority:    in.Priority,
				HasReminder: in.HasReminder,
				Limit:       min(in.Limit, 100),
			})
			if err != nil {
				return taskList{}, err
			}
			out := taskList{Count: len(ts), Tasks: make([]TaskView, 0, len(ts))}
			for _, t := range ts {
				out.Tasks = append(out.Tasks, viewTask(t, k.Location))
			}
			return out, nil
		},
		agent.WithEnum("priority", store.PriorityHigh, store.PriorityMedium, store.PriorityLow),
		agent.WithDefault("limit", 20),
		agent.WithRange("limit", 1, 100),
		agent.WithPermissions(PermTasksRead),
	)
}

type createTaskIn struct {
	Title        string `json:"title" jsonschema:"task title"`
	Date         string `json:"date" jsonschema:"task date, YYYY-MM-DD"`
	Description  string `json:"description,omitempty" jsonschema:"optional details"`
	Time         string `json:"time,omitempty" jsonschema:"time range HH:MM-HH:MM, e.g. 09:00-11:00"`
	Priority     string `json:"priority,omitempty" jsonschema:"task priority"`
	HasReminder  bool   `json:"has_reminder,omitempty" jsonschema:"whether to remind the user"`
	ReminderTime string `json:"reminder_time,omitempty" jsonschema:"reminder date-time, YYYY-MM-DDTHH:MM:SS"`
}

// TaskResult is returned by the tools that write a task.
type TaskResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Task    TaskView `json:"task"`
	// Set by create_task_in_free_time.
	ScheduledInFreeTime bool        `json:"scheduled_in_free_time,omitempty"`
	FreeTimePeriod      *FreePeriod `json:"free_time_period,omitempty"`
}

func (k kit) newTask(ctx context.Context, in createTaskIn) (TaskResult, error) {
	if in.Title == "" {
		return TaskResult{}, errmodel.Validation("bad_title", "title is required", nil)
	}
	if err := checkDate(in.Date); err != nil {
		return TaskResult{}, err
	}
	if in.Time != "" {
		if _, ok := schedule.ParseTaskRange(in.Time); !ok {
			return TaskResult{}, errmodel.Validation("bad_time", "invalid time format, expected HH:MM-HH:MM", map[string]any{"time": in.Time})
		}
	}
	t := store.Task{
		UserID:      k.user,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Date:        in.Date,
		Time:        in.Time,
		HasReminder: in.HasReminder,
	}
	if t.Priority == "" {
		t.Priority = store.PriorityMedium
	}
	if in.ReminderTime != "" {
		rt, err := parseReminder(in.ReminderTime, k.Location)
		if err != nil {
			return TaskResult{}, err
		}
		t.ReminderTime = &rt
	}
	created, err := k.Tasks.CreateTask(ctx, t)
	if err != nil {
		return TaskResult{}, err
	}
	return TaskResult{Success: true, Message: "task created", Task: viewTask(created, k.Location)}, nil
}

func (k kit) createTask() agent.Tool {
	return agent.MustFuncTool("create_task",
		"Create a task with a title and date, optionally a time range, priority and reminder.",
		k.newTask,
		agent.WithEnum("priority", store.PriorityHigh, store.PriorityMedium, store.PriorityLow),
		agent.WithDefault("priority", store.PriorityMedium),
		agent.WithDefault("has_reminder", false),
		agent.WithPermissions(PermTasksWrite),
	)
}

type updateTaskIn struct {
	TaskID       int64   `json:"task_id" jsonschema:"id of the task"`
	Title        string  `json:"title,omitempty" jsonschema:"new title"`
	Description  *string `json:"description,omitempty" jsonschema:"new description"`
	Completed    *bool   `json:"completed,omitempty" jsonschema:"completion state"`
	Priority     string  `json:"priority,omitempty" jsonschema:"new priority"`
	Date         string  `json:"date,omitempty" jsonschema:"new date, YYYY-MM-DD"`
	Time         *string `json:"time,omitempty" jsonschema:"new time range HH:MM-HH:MM; empty clears it"`
	HasReminder  *bool   `json:"has_reminder,omitempty" jsonschema:"whether to remind the user"`
	ReminderTime *string `json:"reminder_time,omitempty" jsonschema:"reminder date-time YYYY-MM-DDTHH:MM:SS; empty clears it"`
}

func (k kit) patchTask(ctx context.Context, in updateTaskIn) (TaskResult, error) {
	var p store.TaskPatch
	if in.Title != "" {
		p.Title = &in.Title
	}
	p.Description = in.Description
	p.Completed = in.Completed
	if in.Priority != "" {
		p.Priority = &in.Priority
	}
	if in.Date != "" {
		if err := checkDate(in.Date); err != nil {
			return TaskResult{}, err
		}
		p.Date = &in.Date
	}
	if in.Time != nil && *in.Time != "" {
		if _, ok := schedule.ParseTaskRange(*in.Time); !ok {
			return TaskResult{}, errmodel.Validation("bad_time", "invalid time format, expected HH:MM-HH:MM", map[string]any{"time": *in.Time})
		}
	}
	p.Time = in.Time
	p.HasReminder = in.HasReminder
	if in.ReminderTime != nil {
		if *in.ReminderTime == "" {
			p.ClearReminderTime = true
		} else {
			rt, err := parseReminder(*in.ReminderTime, k.Location)
			if err != nil {
				return TaskResult{}, err
			}
			p.ReminderTime = &rt
		}
	}
	t, err := k.Tasks.UpdateTask(ctx, k.user, in.TaskID, p)
	if errors.Is(err, store.ErrNotFound) {
		return TaskResult{}, notFound("task", in.TaskID)
	}
	if err != nil {
		return TaskResult{}, err
	}
	return TaskResult{Success: true, Message: "task updated", Task: viewTask(t, k.Location)}, nil
}

func (k kit) updateTask() agent.Tool {
	return agent.MustFuncTool("update_task",
		"Update a task's title, description, completion, priority, date, time or reminder.",
		k.patchTask,
		agent.WithEnum("priority", store.PriorityHigh, store.PriorityMedium, store.PriorityLow),
		agent.WithPermissions(PermTasksWrite),
	)
}

type taskIDIn struct {
	TaskID int64 `json:"task_id" jsonschema:"id of the task to delete"`
}

type taskRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type deletedTask struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Task    taskRef `json:"task"`
}

func (k kit) deleteTask() agent.Tool {
	return agent.MustFuncTool("delete_task", "Delete one of the user's tasks.",
		func(ctx context.Context, in taskIDIn) (deletedTask, error) {
			t, err := k.Tasks.DeleteTask(ctx, k.user, in.TaskID)
			if errors.Is(err, store.ErrNotFound) {
				return deletedTask{}, notFound("task", in.TaskID)
			}
			if err != nil {
				return deletedTask{}, err
			}
			return deletedTask{Success: true, Message: "task deleted", Task: taskRef{ID: t.ID, Title: t.Title}}, nil
		},
		agent.WithPermissions(PermTasksWrite),
	)
}

type completeTaskIn struct {
	TaskID    int64 `json:"task_id" jsonschema:"id of the task"`
	Completed bool  `json:"completed,omitempty" jsonschema:"true marks the task done, false reopens it"`
}

func (k kit) completeTask() agent.Tool {
	return agent.MustFuncTool("complete_task", "Mark a task as done or not done.",
		func(ctx context.Context, in completeTaskIn) (TaskResult, error) {
			return k.patchTask(ctx, updateTaskIn{TaskID: in.TaskID, Completed: &in.Completed})
		},
		agent.WithDefault("completed", true),
		agent.WithPermissions(PermTasksWrite),
	)
}
