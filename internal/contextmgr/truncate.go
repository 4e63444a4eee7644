package contextmgr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	headShare = 0.70
	tailShare = 0.25

	// MinTruncateCap is the smallest cap that still leaves room for the marker.
	MinTruncateCap = 64

	// Tool-input fields above inputFieldLimit keep inputFieldKeep runes.
	inputFieldLimit = 4000
	inputFieldKeep  = 3000
)

// SmartTruncate 保留头部 70% 与尾部 25%，中间替换为省略标记
// SmartTruncate keeps 70% of the cap from the start and 25% from the end,
// joined by a marker giving the exact number of omitted runes. The result is
// always shorter than s when s exceeds the cap.
func SmartTruncate(s string, limit int) string {
	if limit < MinTruncateCap {
		limit = MinTruncateCap
	}
	runes := []rune(s)
	n := len(runes)
	if n <= limit {
		return s
	}

	head := int(float64(limit) * headShare)
	tail := int(float64(limit) * tailShare)
	omitted := n - head - tail
	marker := truncationMarker(omitted)
	for omitted <= utf8.RuneCountInString(marker) {
		if tail > 0 {
			tail--
		} else if head > 0 {
			head--
		} else {
			break
		}
		omitted++
		marker = truncationMarker(omitted)
	}
	return string(runes[:head]) + marker + string(runes[n-tail:])
}

func truncationMarker(omitted int) string {
	return fmt.Sprintf("\n\n... [%d characters truncated] ...\n\n", omitted)
}

// CompactToolInput shortens oversized top-level string fields of a tool
// input before it is stored in history. The tool itself has already run
// with the full input. Every other byte of the input is kept as written,
// so key order and number literals survive.
func CompactToolInput(input json.RawMessage) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return input
	}

	var out bytes.Buffer
	last := 0
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return input
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return input
		}
		end := int(dec.InputOffset())
		start := end - len(raw)

		var s string
		if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
			continue
		}
		if utf8.RuneCountInString(s) <= inputFieldLimit {
			continue
		}
		kept, _ := truncateHead(s, inputFieldKeep)
		enc, err := encodeString(fmt.Sprintf("%s\n... [%d chars truncated]", kept, utf8.RuneCountInString(s)-inputFieldKeep))
		if err != nil {
			return input
		}
		out.Write(input[last:start])
		out.Write(enc)
		last = end
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return input
	}
	if last == 0 {
		return input
	}
	out.Write(input[last:])
	return out.Bytes()
}

// encodeString marshals s without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// truncateHead returns the first max runes of s.
func truncateHead(s string, max int) (string, bool) {
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
