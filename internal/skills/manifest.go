package skills

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

const frontMatterDelimiter = "---"

var (
	errNoFrontMatter       = errors.New("missing front matter")
	errUnterminatedHeader  = errors.New("unterminated front matter")
	errMissingRequiredKeys = errors.New("name and description are required")
)

// manifest is a parsed SKILL.md file.
type manifest struct {
	fields map[string]string
	body   string
}

// parseManifest splits content into front matter and body in two passes:
// first the delimited header lines become a key/value map, then whatever
// follows the closing delimiter becomes the body. Any malformed header line
// rejects the whole manifest.
func parseManifest(content string) (manifest, error) {
	header, body, err := splitFrontMatter(content)
	if err != nil {
		return manifest{}, err
	}
	fields, err := parseHeader(header)
	if err != nil {
		return manifest{}, err
	}
	if fields["name"] == "" || fields["description"] == "" {
		return manifest{}, errMissingRequiredKeys
	}
	return manifest{fields: fields, body: strings.TrimSpace(body)}, nil
}

func splitFrontMatter(content string) ([]string, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		header  []string
		body    strings.Builder
		opened  bool
		closed  bool
		started bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case closed:
			body.WriteString(line)
			body.WriteString("\n")
		case !opened:
			if strings.TrimSpace(line) == "" && !started {
				continue
			}
			started = true
			if strings.TrimSpace(line) != frontMatterDelimiter {
				return nil, "", errNoFrontMatter
			}
			opened = true
		case strings.TrimSpace(line) == frontMatterDelimiter:
			closed = true
		default:
			header = append(header, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("scan manifest: %w", err)
	}
	if !opened {
		return nil, "", errNoFrontMatter
	}
	if !closed {
		return nil, "", errUnterminatedHeader
	}
	return header, body.String(), nil
}

func parseHeader(lines []string) (map[string]string, error) {
	fields := make(map[string]string, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("front matter line %d: expected key: value", i+1)
		}
		fields[key] = unquote(strings.TrimSpace(value))
	}
	return fields, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' || first == '\'') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}
