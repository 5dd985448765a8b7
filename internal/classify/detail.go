package classify

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
)

// DetailWidth is the maximum display width of a detail string, in
// terminal cells. Longer details are truncated with an ellipsis.
const DetailWidth = 40

// truncateDetail trims s to DetailWidth terminal cells, appending an
// ellipsis when anything was cut. Width is measured in display cells, not
// bytes, so CJK input truncates correctly.
func truncateDetail(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= DetailWidth {
		return s
	}
	return runewidth.Truncate(s, DetailWidth, "…")
}

// inputString fetches the first non-empty string value among the given keys.
// Tool inputs are loosely-typed maps that vary per front-end, so every
// lookup tolerates missing keys and non-string values.
func inputString(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := input[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// filePathFrom extracts a file path from the common per-tool field names.
func filePathFrom(input map[string]any) string {
	return inputString(input, "file_path", "filePath", "path", "filename", "notebook_path", "target_file")
}

// FilePath returns the file path argument of a tool input, or "" when the
// tool does not carry one. Used by callers that track which files a session
// touches.
func FilePath(input map[string]any) string {
	return filePathFrom(input)
}

// fileBasename returns the basename of the tool's file argument, or "".
func fileBasename(input map[string]any) string {
	p := filePathFrom(input)
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// commandFrom extracts a shell command from the tool input.
func commandFrom(input map[string]any) string {
	return inputString(input, "command", "cmd", "script")
}

// patternFrom extracts a search pattern or query from the tool input.
func patternFrom(input map[string]any) string {
	return inputString(input, "pattern", "query", "regex", "search", "glob")
}

// urlHost returns the host portion of the tool's URL argument, falling back
// to the raw value when it does not parse.
func urlHost(input map[string]any) string {
	raw := inputString(input, "url", "uri", "link")
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// countLines counts newline-delimited lines in s; empty input is zero lines.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
