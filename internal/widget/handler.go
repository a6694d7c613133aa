package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magicmac/myday/internal/schema"
)

// Actions are the task operations a widget may trigger.
type Actions interface {
	AddTask(ctx context.Context, text string) (schema.Task, error)
	ToggleTask(ctx context.Context, taskID string, completed bool) error
	UpdateTaskText(ctx context.Context, taskID, text string) error
	DeleteTask(ctx context.Context, taskID string) error
	Reorder(ids []string) error
}

// Action names accepted from widgets.
const (
	ActionAdd     = "add"
	ActionToggle  = "toggle"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionReorder = "reorder"
)

// Request is a widget action.
type Request struct {
	Action    string   `json:"action"`
	ID        string   `json:"id,omitempty"`
	Text      string   `json:"text,omitempty"`
	Completed bool     `json:"completed,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

const actionTimeout = 10 * time.Second

// dispatch decodes and runs one widget action.
func (s *Server) dispatch(data []byte) error {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	s.actionsMu.RLock()
	actions := s.actions
	s.actionsMu.RUnlock()
	if actions == nil {
		return fmt.Errorf("widget actions are not available")
	}

	ctx, cancel := context.WithTimeout(s.ctx, actionTimeout)
	defer cancel()

	switch req.Action {
	case ActionAdd:
		_, err := actions.AddTask(ctx, req.Text)
		return err
	case ActionToggle:
		if req.ID == "" {
			return fmt.Errorf("id is required")
		}
		return actions.ToggleTask(ctx, req.ID, req.Completed)
	case ActionEdit:
		if req.ID == "" {
			return fmt.Errorf("id is required")
		}
		return actions.UpdateTaskText(ctx, req.ID, req.Text)
	case ActionDelete:
		if req.ID == "" {
			return fmt.Errorf("id is required")
		}
		return actions.DeleteTask(ctx, req.ID)
	case ActionReorder:
		return actions.Reorder(req.IDs)
	default:
		return fmt.Errorf("unknown action %q", req.Action)
	}
}
