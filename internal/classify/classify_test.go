package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avelinecho/pixelpet/internal/activity"
)

func TestClassify_EditTools(t *testing.T) {
	editTools := []string{"Edit", "Write", "MultiEdit", "NotebookEdit", "apply_patch", "str_replace_editor"}

	for _, tool := range editTools {
		t.Run(tool, func(t *testing.T) {
			res := Classify(tool, map[string]any{"file_path": "/home/dev/project/main.go"})
			assert.Equal(t, activity.StateCoding, res.State)
			assert.Contains(t, res.Detail, "main.go")
		})
	}
}

func TestClassify_EditWithoutPath(t *testing.T) {
	res := Classify("Edit", map[string]any{})
	assert.Equal(t, activity.StateCoding, res.State)
	assert.Equal(t, "writing code", res.Detail)
}

func TestClassify_ReviewBeforeEdit(t *testing.T) {
	// Diff-reviewing tools carry file paths too; the review rule must win
	// over the edit rule.
	res := Classify("ReviewEdits", map[string]any{"file_path": "/tmp/a.go"})
	assert.Equal(t, activity.StateReviewing, res.State)

	res = Classify("git_diff", map[string]any{})
	assert.Equal(t, activity.StateReviewing, res.State)
}

func TestClassify_ShellSubDispatch(t *testing.T) {
	tests := []struct {
		command string
		want    activity.State
	}{
		{"go test ./...", activity.StateTesting},
		{"npx vitest run", activity.StateTesting},
		{"pytest -x tests/", activity.StateTesting},
		{"npm install lodash", activity.StateInstalling},
		{"pip install -r requirements.txt", activity.StateInstalling},
		{"go mod tidy", activity.StateInstalling},
		{"git commit -m 'fix'", activity.StateCommitting},
		{"git push origin main", activity.StateCommitting},
		{"git tag v1.0.0", activity.StateCommitting},
		{"ls -la", activity.StateExecuting},
		{"make build", activity.StateExecuting},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			res := Classify("Bash", map[string]any{"command": tt.command})
			assert.Equal(t, tt.want, res.State)
		})
	}
}

func TestClassify_ReadAndSearch(t *testing.T) {
	res := Classify("Read", map[string]any{"file_path": "/etc/hosts"})
	assert.Equal(t, activity.StateReading, res.State)
	assert.Equal(t, "hosts", res.Detail)

	res = Classify("Grep", map[string]any{"pattern": "func main"})
	assert.Equal(t, activity.StateSearching, res.State)
	assert.Equal(t, "func main", res.Detail)

	res = Classify("Glob", map[string]any{"pattern": "**/*.go"})
	assert.Equal(t, activity.StateSearching, res.State)
}

func TestClassify_WebFetch(t *testing.T) {
	res := Classify("WebFetch", map[string]any{"url": "https://pkg.go.dev/net/http"})
	assert.Equal(t, activity.StateSearching, res.State)
	assert.Equal(t, "pkg.go.dev", res.Detail)
}

func TestClassify_Delegate(t *testing.T) {
	res := Classify("Task", map[string]any{"description": "refactor storage layer"})
	assert.Equal(t, activity.StateSubagent, res.State)
	assert.Equal(t, "refactor storage layer", res.Detail)
}

func TestClassify_ExternalNamespaced(t *testing.T) {
	res := Classify("mcp__github__create_issue", map[string]any{})
	assert.Equal(t, activity.StateExecuting, res.State)
	assert.Equal(t, "create_issue", res.Detail)
}

func TestClassify_UnknownToolFallsBack(t *testing.T) {
	res := Classify("SomeBrandNewTool", map[string]any{})
	assert.Equal(t, activity.StateThinking, res.State)
	assert.Equal(t, "SomeBrandNewTool", res.Detail)
}

func TestClassify_EmptyToolName(t *testing.T) {
	res := Classify("", nil)
	assert.Equal(t, activity.StateThinking, res.State)
	assert.NotEmpty(t, res.Detail)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	lower := Classify("bash", map[string]any{"command": "echo hi"})
	upper := Classify("BASH", map[string]any{"command": "echo hi"})
	assert.Equal(t, lower, upper)
}

func TestClassify_NonStringInputValues(t *testing.T) {
	// Adapters sometimes ship numbers or nested objects; classification must
	// tolerate them without panicking.
	res := Classify("Read", map[string]any{"file_path": 42, "limit": []int{1, 2}})
	assert.Equal(t, activity.StateReading, res.State)
	assert.Equal(t, "reading", res.Detail)
}

func TestTruncateDetail(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := truncateDetail(long)
	assert.LessOrEqual(t, len([]rune(got)), DetailWidth)
	assert.True(t, strings.HasSuffix(got, "…"))

	short := "main.go"
	assert.Equal(t, short, truncateDetail(short))
}

func TestTruncateDetail_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "go test ./...", truncateDetail("go  test\n./..."))
}

func TestIsShellCategory(t *testing.T) {
	assert.True(t, IsShellCategory("Bash"))
	assert.True(t, IsShellCategory("run_terminal_cmd"))
	assert.False(t, IsShellCategory("Read"))
	assert.False(t, IsShellCategory("Edit"))
}
