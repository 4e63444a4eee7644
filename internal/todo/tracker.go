// Package todo holds the single checklist shared by a session and every
// subagent it spawns.
package todo

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const MaxItems = 20

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Item struct {
	Content    string `json:"content"`
	Status     Status `json:"status"`
	ActiveForm string `json:"activeForm"`
}

var ErrMultipleInProgress = errors.New("only one task can be in_progress")

// Tracker owns one list. Updates replace it wholesale and are validated in
// full before anything is committed.
type Tracker struct {
	mu    sync.Mutex
	items []Item
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update validates items, commits them and returns the rendered checklist.
// On error the previous list is left untouched.
func (t *Tracker) Update(items []Item) (string, error) {
	validated, err := validate(items)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.items = validated
	t.mu.Unlock()
	return t.Render(), nil
}

func validate(items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	inProgress := 0
	for i, it := range items {
		content := strings.TrimSpace(it.Content)
		active := strings.TrimSpace(it.ActiveForm)
		status := Status(strings.ToLower(strings.TrimSpace(string(it.Status))))
		if status == "" {
			status = StatusPending
		}
		if content == "" || active == "" {
			return nil, fmt.Errorf("item %d: content and activeForm required", i)
		}
		if !status.valid() {
			return nil, fmt.Errorf("item %d: invalid status %q", i, it.Status)
		}
		if status == StatusInProgress {
			inProgress++
		}
		out = append(out, Item{Content: content, Status: status, ActiveForm: active})
	}
	if inProgress > 1 {
		return nil, ErrMultipleInProgress
	}
	if len(out) > MaxItems {
		out = out[:MaxItems]
	}
	return out, nil
}

// Items returns a copy of the committed list.
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.items...)
}

// Render formats the committed list as a checklist with a progress footer.
func (t *Tracker) Render() string {
	items := t.Items()
	if len(items) == 0 {
		return "No todos."
	}
	lines := make([]string, 0, len(items))
	done := 0
	for _, it := range items {
		mark := "[ ]"
		switch it.Status {
		case StatusCompleted:
			mark = "[x]"
			done++
		case StatusInProgress:
			mark = "[>]"
		}
		lines = append(lines, mark+" "+it.Content)
	}
	return strings.Join(lines, "\n") + fmt.Sprintf("\n(%d/%d done)", done, len(items))
}
