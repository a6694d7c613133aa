package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/magicmac/myday/internal/schema"
)

const (
	tasksPath   = "/rest/v1/tasks"
	taskColumns = "id,text,completed,created_at,day"
	returnRepr  = "return=representation"
)

// NewTask is the insert payload for a task.
type NewTask struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Day       string `json:"day"`
}

// ListTasks returns every task of userID, newest first.
func (c *Client) ListTasks(ctx context.Context, token, userID string) ([]schema.Task, error) {
	var out []schema.Task
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   tasksPath,
		query: url.Values{
			"select":  {taskColumns},
			"user_id": {eq(userID)},
			"order":   {"created_at.desc"},
		},
		token: token,
		out:   &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasksSince returns the tasks of userID whose day is on or after
// cutoffDay, oldest day first.
func (c *Client) ListTasksSince(ctx context.Context, token, userID, cutoffDay string) ([]schema.Task, error) {
	var out []schema.Task
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   tasksPath,
		query: url.Values{
			"select":  {"text,completed,day"},
			"user_id": {eq(userID)},
			"day":     {"gte." + cutoffDay},
			"order":   {"day.asc"},
		},
		token: token,
		out:   &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertTask creates a task and returns the stored row.
func (c *Client) InsertTask(ctx context.Context, token string, task NewTask) (*schema.Task, error) {
	var out []schema.Task
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   tasksPath,
		token:  token,
		prefer: returnRepr,
		body:   []NewTask{task},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert returned no rows")
	}
	return &out[0], nil
}

// SetCompleted patches the completion flag of a task.
func (c *Client) SetCompleted(ctx context.Context, token, taskID string, completed bool) error {
	return c.patchTask(ctx, token, taskID, map[string]any{"completed": completed})
}

// SetText patches the text of a task.
func (c *Client) SetText(ctx context.Context, token, taskID, text string) error {
	return c.patchTask(ctx, token, taskID, map[string]any{"text": text})
}

func (c *Client) patchTask(ctx context.Context, token, taskID string, fields map[string]any) error {
	return c.do(ctx, request{
		method: http.MethodPatch,
		path:   tasksPath,
		query:  url.Values{"id": {eq(taskID)}},
		token:  token,
		prefer: returnRepr,
		body:   fields,
		out:    &[]schema.Task{},
	})
}

// DeleteTask removes a task by id.
func (c *Client) DeleteTask(ctx context.Context, token, taskID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   tasksPath,
		query:  url.Values{"id": {eq(taskID)}},
		token:  token,
	})
}

// DeleteCompleted removes the completed tasks of userID on day.
func (c *Client) DeleteCompleted(ctx context.Context, token, userID, day string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   tasksPath,
		query: url.Values{
			"user_id":   {eq(userID)},
			"day":       {eq(day)},
			"completed": {"eq.true"},
		},
		token: token,
	})
}
