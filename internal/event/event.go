// Package event defines the events a conversation run publishes and the
// sinks that consume them.
package event

import (
	"encoding/json"
	"sync"
)

// Kind 事件类型
// Kind tags an Event
type Kind string

const (
	KindText       Kind = "text"
	KindToolStart  Kind = "tool_start"
	KindToolResult Kind = "tool_result"
	KindDone       Kind = "done"
	KindError      Kind = "error"
	KindAborted    Kind = "aborted"
)

// Terminal reports whether k ends a run.
func (k Kind) Terminal() bool {
	return k == KindDone || k == KindError || k == KindAborted
}

// Event 一次运行中发布的事件；字段按 Kind 使用
// Event is one item of the run's event stream; which fields are set depends on Kind
type Event struct {
	Kind     Kind
	Content  string          // text
	Name     string          // tool_start, tool_result
	Input    json.RawMessage // tool_start
	Output   string          // tool_result
	Response string          // done
	Message  string          // error, aborted
}

func Text(content string) Event { return Event{Kind: KindText, Content: content} }

func ToolStart(name string, input json.RawMessage) Event {
	return Event{Kind: KindToolStart, Name: name, Input: input}
}

func ToolResult(name, output string) Event {
	return Event{Kind: KindToolResult, Name: name, Output: output}
}

func Done(response string) Event { return Event{Kind: KindDone, Response: response} }

func Error(message string) Event { return Event{Kind: KindError, Message: message} }

func Aborted(message string) Event { return Event{Kind: KindAborted, Message: message} }

// Payload returns the kind-specific data object used on the wire.
func (e Event) Payload() map[string]any {
	switch e.Kind {
	case KindText:
		return map[string]any{"content": e.Content}
	case KindToolStart:
		input := e.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return map[string]any{"name": e.Name, "input": input}
	case KindToolResult:
		return map[string]any{"name": e.Name, "output": e.Output}
	case KindDone:
		return map[string]any{"response": e.Response}
	default:
		return map[string]any{"message": e.Message}
	}
}

// MarshalJSON encodes the event as {"type": kind, "data": payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Kind           `json:"type"`
		Data map[string]any `json:"data"`
	}{Type: e.Kind, Data: e.Payload()})
}

// Sink 事件接收者
// Sink consumes events. Emit is called from the goroutine running the
// conversation and must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Collector records events.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of what has been recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Kinds lists the recorded kinds in order.
func (c *Collector) Kinds() []Kind {
	events := c.Events()
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// Text concatenates the content of all text events.
func (c *Collector) Text() string {
	var out []byte
	for _, e := range c.Events() {
		if e.Kind == KindText {
			out = append(out, e.Content...)
		}
	}
	return string(out)
}
