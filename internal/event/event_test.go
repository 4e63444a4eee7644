package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_MarshalJSON(t *testing.T) {
	cases := []struct {
		event Event
		want  string
	}{
		{Text("hi"), `{"type":"text","data":{"content":"hi"}}`},
		{ToolStart("bash", json.RawMessage(`{"command":"ls"}`)), `{"type":"tool_start","data":{"input":{"command":"ls"},"name":"bash"}}`},
		{ToolStart("bash", nil), `{"type":"tool_start","data":{"input":{},"name":"bash"}}`},
		{ToolResult("bash", "a.txt"), `{"type":"tool_result","data":{"name":"bash","output":"a.txt"}}`},
		{Done("ok"), `{"type":"done","data":{"response":"ok"}}`},
		{Error("boom"), `{"type":"error","data":{"message":"boom"}}`},
		{Aborted("turn limit"), `{"type":"aborted","data":{"message":"turn limit"}}`},
	}
	for _, tc := range cases {
		got, err := json.Marshal(tc.event)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(got), tc.event.Kind)
	}
}

func TestKind_Terminal(t *testing.T) {
	assert.True(t, KindDone.Terminal())
	assert.True(t, KindError.Terminal())
	assert.True(t, KindAborted.Terminal())
	assert.False(t, KindText.Terminal())
	assert.False(t, KindToolResult.Terminal())
}

func TestMultiAndCollector(t *testing.T) {
	var a, b Collector
	var calls int
	sink := Multi(&a, nil, &b, SinkFunc(func(Event) { calls++ }))

	sink.Emit(Text("one"))
	sink.Emit(Text("two"))
	sink.Emit(Done("two"))

	assert.Equal(t, []Kind{KindText, KindText, KindDone}, a.Kinds())
	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, "onetwo", a.Text())
	assert.Equal(t, 3, calls)

	Discard.Emit(Text("ignored"))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Emit(ToolStart("bash", nil))
	p.Emit(ToolResult("bash", strings.Repeat("x", 300)))
	p.Emit(Done(""))

	out := buf.String()
	assert.Contains(t, out, "> bash")
	assert.Contains(t, out, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 201))
	assert.Contains(t, out, "> Done")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("  short \n", 10))
	assert.Equal(t, "界界...", Preview("界界界", 2))
}
