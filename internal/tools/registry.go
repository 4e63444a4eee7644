package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"buildmatic/internal/chat"
)

// Outcome is the result of one dispatch. Fatal is set only when a tool
// surfaced an error that must abort the conversation.
type Outcome struct {
	ID     ID
	Output string
	Failed bool
	Fatal  error
}

// FatalError marks an executor error that must not be folded into a tool
// result, such as a completion-service failure inside a subagent.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

type Registry struct {
	tools map[ID]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	m := make(map[ID]Tool, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		m[t.ID()] = t
	}
	return &Registry{tools: m}
}

// Subset returns a registry holding only the tools allow accepts.
func (r *Registry) Subset(allow func(ID) bool) *Registry {
	m := make(map[ID]Tool, len(r.tools))
	for id, t := range r.tools {
		if allow(id) {
			m[id] = t
		}
	}
	return &Registry{tools: m}
}

// Specs returns tool specs in catalogue order.
func (r *Registry) Specs() []chat.ToolSpec {
	out := make([]chat.ToolSpec, 0, len(r.tools))
	for _, id := range r.IDs() {
		out = append(out, r.tools[id].Spec())
	}
	return out
}

func (r *Registry) IDs() []ID {
	out := make([]ID, 0, len(r.tools))
	for _, id := range AllIDs() {
		if _, ok := r.tools[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Names() []string {
	ids := r.IDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	return names
}

func (r *Registry) Get(id ID) (Tool, bool) {
	t, ok := r.tools[id]
	return t, ok
}

func (r *Registry) Has(id ID) bool {
	_, ok := r.tools[id]
	return ok
}

// Dispatch routes one tool request. Failures of any kind come back as an
// "Error: ..." output rather than a Go error.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) Outcome {
	id, ok := ParseID(name)
	if !ok {
		return failed(0, fmt.Errorf("unknown tool: %s", name))
	}
	t, ok := r.tools[id]
	if !ok {
		return failed(id, fmt.Errorf("tool %s is not available", name))
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	out, err := t.Execute(ctx, args)
	if err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return Outcome{ID: id, Output: "Error: " + fatal.Err.Error(), Failed: true, Fatal: fatal.Err}
		}
		return failed(id, err)
	}
	return Outcome{ID: id, Output: out}
}

func failed(id ID, err error) Outcome {
	return Outcome{ID: id, Output: "Error: " + err.Error(), Failed: true}
}

func decodeArgs(tool string, args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%s args: %w", tool, err)
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// truncateRunes caps s at max runes, reporting whether it cut anything.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
