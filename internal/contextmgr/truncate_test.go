package contextmgr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"
)

var markerPattern = regexp.MustCompile(`\n\n\.\.\. \[(\d+) characters truncated\] \.\.\.\n\n`)

func TestSmartTruncate_UnderCap(t *testing.T) {
	if got := SmartTruncate("short", 4000); got != "short" {
		t.Fatalf("SmartTruncate() = %q", got)
	}
}

func TestSmartTruncate_HeadTailAndCount(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "%d,", i)
	}
	input := sb.String()
	const limit = 1000

	got := SmartTruncate(input, limit)
	if utf8.RuneCountInString(got) >= utf8.RuneCountInString(input) {
		t.Fatalf("output not shorter: %d >= %d", len(got), len(input))
	}
	if !strings.HasPrefix(got, input[:700]) {
		t.Fatal("head fragment missing")
	}
	if !strings.HasSuffix(got, input[len(input)-250:]) {
		t.Fatal("tail fragment missing")
	}
	m := markerPattern.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("marker missing in %q", got[690:760])
	}
	omitted, _ := strconv.Atoi(m[1])
	if omitted != len(input)-700-250 {
		t.Fatalf("omitted = %d, want %d", omitted, len(input)-950)
	}
}

func TestSmartTruncate_AlwaysShorter(t *testing.T) {
	for _, limit := range []int{1, 10, 64, 100, 500} {
		for _, extra := range []int{1, 2, 5, 40, 1000} {
			input := strings.Repeat("x", max(limit, MinTruncateCap)+extra)
			got := SmartTruncate(input, limit)
			if len(got) >= len(input) {
				t.Fatalf("limit=%d extra=%d: len(out)=%d >= len(in)=%d", limit, extra, len(got), len(input))
			}
			m := markerPattern.FindStringSubmatch(got)
			if m == nil {
				t.Fatalf("limit=%d extra=%d: marker missing", limit, extra)
			}
			omitted, _ := strconv.Atoi(m[1])
			kept := len(got) - len(m[0])
			if kept+omitted != len(input) {
				t.Fatalf("limit=%d extra=%d: kept %d + omitted %d != %d", limit, extra, kept, omitted, len(input))
			}
		}
	}
}

func TestSmartTruncate_CountsRunes(t *testing.T) {
	input := strings.Repeat("界", 5000)
	got := SmartTruncate(input, 1000)
	if !utf8.ValidString(got) {
		t.Fatal("output is not valid UTF-8")
	}
	m := markerPattern.FindStringSubmatch(got)
	if m == nil || m[1] != "4050" {
		t.Fatalf("marker = %v", m)
	}
}

func TestCompactToolInput(t *testing.T) {
	big := strings.Repeat("a", 5000)
	input, _ := json.Marshal(map[string]any{"path": "big.txt", "content": big, "n": 3})

	out := CompactToolInput(input)
	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	content := fields["content"].(string)
	if content != strings.Repeat("a", 3000)+"\n... [2000 chars truncated]" {
		t.Fatalf("content head/marker wrong: %q", content[2990:])
	}
	if fields["path"] != "big.txt" || fields["n"].(float64) != 3 {
		t.Fatalf("other fields changed: %+v", fields)
	}
}

func TestCompactToolInput_LeavesSmallAndInvalidInput(t *testing.T) {
	small := json.RawMessage(`{"command":"ls"}`)
	if got := CompactToolInput(small); string(got) != string(small) {
		t.Fatalf("small input changed: %s", got)
	}
	notObject := json.RawMessage(`["a"]`)
	if got := CompactToolInput(notObject); string(got) != string(notObject) {
		t.Fatalf("array input changed: %s", got)
	}
}

func TestCompactToolInput_KeepsOtherBytesVerbatim(t *testing.T) {
	big := strings.Repeat("x", 4500)
	input := json.RawMessage(`{"z_first":"<a & b>","content":"` + big + `","id":9007199254740993,"nested":{"b":1,"a":2}}`)

	out := CompactToolInput(input)
	want := `{"z_first":"<a & b>","content":"` + strings.Repeat("x", 3000) +
		`\n... [1500 chars truncated]","id":9007199254740993,"nested":{"b":1,"a":2}}`
	if string(out) != want {
		t.Fatalf("CompactToolInput rewrote untouched fields:\n%s", out)
	}
}

func TestCompactToolInput_NoHTMLEscapingInTruncatedField(t *testing.T) {
	big := strings.Repeat("<&>", 2000)
	input, _ := json.Marshal(map[string]string{"content": big})

	out := CompactToolInput(input)
	if strings.Contains(string(out), `\u003c`) || !strings.Contains(string(out), `<&>`) {
		t.Fatalf("truncated field was HTML-escaped: %.80s", out)
	}
	var fields map[string]string
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(fields["content"], strings.Repeat("<&>", 1000)+"\n... [3000 chars truncated]") {
		t.Fatalf("content = %.80q", fields["content"])
	}
}
