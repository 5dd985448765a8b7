// Package classify maps tool invocations and their results onto activity
// states. Classification is deliberately forgiving: tool names arrive from
// many independent front-ends in their own spellings, so matching is
// case-insensitive, substring-based, and total: every input classifies to
// something, never to an error.
package classify

import (
	"strings"

	"github.com/avelinecho/pixelpet/internal/activity"
)

// Result is the outcome of classifying a tool invocation.
type Result struct {
	State  activity.State
	Detail string
}

// rule pairs a tool-name predicate with a resolver. Rules are evaluated in
// order and the first match wins, so precedence lives in the table, not in
// scattered conditionals.
type rule struct {
	name    string
	match   func(tool string) bool
	resolve func(tool string, input map[string]any) Result
}

// rules is the ordered category table. Review/diff tools are checked before
// edit tools on purpose: a diff-reviewing tool usually carries a file path
// and would otherwise classify as a direct edit.
var rules = []rule{
	{name: "review", match: isReviewTool, resolve: resolveReview},
	{name: "edit", match: isEditTool, resolve: resolveEdit},
	{name: "shell", match: isShellTool, resolve: resolveShell},
	{name: "read", match: isReadTool, resolve: resolveRead},
	{name: "search", match: isSearchTool, resolve: resolveSearch},
	{name: "web", match: isWebTool, resolve: resolveWeb},
	{name: "delegate", match: isDelegateTool, resolve: resolveDelegate},
	{name: "external", match: isExternalTool, resolve: resolveExternal},
}

// Classify maps a tool name plus its loosely-typed input to an activity
// state and a short human-readable detail. It never fails: unknown tools
// fall back to thinking with the raw tool name as detail.
func Classify(toolName string, toolInput map[string]any) Result {
	tool := strings.ToLower(strings.TrimSpace(toolName))
	for _, r := range rules {
		if r.match(tool) {
			return r.resolve(tool, toolInput)
		}
	}
	detail := "pondering..."
	if toolName != "" {
		detail = truncateDetail(toolName)
	}
	return Result{State: activity.StateThinking, Detail: detail}
}

// Category predicates. All operate on the lowercased tool name.

func isReviewTool(tool string) bool {
	return containsAny(tool, "diff", "review", "lint", "critique")
}

func isEditTool(tool string) bool {
	return containsAny(tool, "edit", "write", "patch", "apply", "create_file", "str_replace", "insert")
}

func isShellTool(tool string) bool {
	return containsAny(tool, "bash", "shell", "terminal", "exec", "command", "run_")
}

func isReadTool(tool string) bool {
	return containsAny(tool, "read", "open_file", "view", "cat_")
}

func isSearchTool(tool string) bool {
	return tool == "ls" || containsAny(tool, "grep", "glob", "search", "find", "list")
}

func isWebTool(tool string) bool {
	return containsAny(tool, "fetch", "web", "http", "browse", "url", "curl")
}

func isDelegateTool(tool string) bool {
	return containsAny(tool, "task", "agent", "delegate", "dispatch", "spawn")
}

func isExternalTool(tool string) bool {
	return strings.HasPrefix(tool, "mcp__")
}

// IsShellCategory reports whether the tool name is a shell-execution tool.
// The forensic result classifier uses this to decide whether stdout text is
// allowed to carry failure phrases: structured tools echo file contents, not
// shell diagnostics, and would false-positive on failure-sounding words.
func IsShellCategory(toolName string) bool {
	return isShellTool(strings.ToLower(strings.TrimSpace(toolName)))
}

// IsEditCategory reports whether the tool name is an edit/write tool.
func IsEditCategory(toolName string) bool {
	tool := strings.ToLower(strings.TrimSpace(toolName))
	return !isReviewTool(tool) && isEditTool(tool)
}

// IsReadCategory reports whether the tool name is a read or search tool.
func IsReadCategory(toolName string) bool {
	tool := strings.ToLower(strings.TrimSpace(toolName))
	return isReadTool(tool) || isSearchTool(tool)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Category resolvers.

func resolveReview(_ string, input map[string]any) Result {
	detail := fileBasename(input)
	if detail == "" {
		detail = "reviewing changes"
	}
	return Result{State: activity.StateReviewing, Detail: truncateDetail(detail)}
}

func resolveEdit(_ string, input map[string]any) Result {
	detail := fileBasename(input)
	if detail == "" {
		detail = "writing code"
	}
	return Result{State: activity.StateCoding, Detail: truncateDetail(detail)}
}

func resolveShell(_ string, input map[string]any) Result {
	cmd := commandFrom(input)
	state := shellState(cmd)
	detail := cmd
	if detail == "" {
		detail = "running command"
	}
	return Result{State: state, Detail: truncateDetail(detail)}
}

func resolveRead(_ string, input map[string]any) Result {
	detail := fileBasename(input)
	if detail == "" {
		detail = "reading"
	}
	return Result{State: activity.StateReading, Detail: truncateDetail(detail)}
}

func resolveSearch(_ string, input map[string]any) Result {
	detail := patternFrom(input)
	if detail == "" {
		detail = fileBasename(input)
	}
	if detail == "" {
		detail = "searching"
	}
	return Result{State: activity.StateSearching, Detail: truncateDetail(detail)}
}

func resolveWeb(_ string, input map[string]any) Result {
	detail := urlHost(input)
	if detail == "" {
		detail = patternFrom(input)
	}
	if detail == "" {
		detail = "browsing"
	}
	return Result{State: activity.StateSearching, Detail: truncateDetail(detail)}
}

func resolveDelegate(_ string, input map[string]any) Result {
	detail := inputString(input, "description", "prompt", "task")
	if detail == "" {
		detail = "delegating work"
	}
	return Result{State: activity.StateSubagent, Detail: truncateDetail(detail)}
}

func resolveExternal(tool string, _ map[string]any) Result {
	// mcp__server__tool: show the trailing tool segment, or the server name.
	parts := strings.Split(tool, "__")
	detail := parts[len(parts)-1]
	if detail == "" && len(parts) > 1 {
		detail = parts[1]
	}
	if detail == "" {
		detail = "external tool"
	}
	return Result{State: activity.StateExecuting, Detail: truncateDetail(detail)}
}

// Shell sub-dispatch: more specific states for well-known command shapes,
// checked in order before falling back to generic executing.

var testKeywords = []string{
	"go test", "npm test", "npm run test", "pnpm test", "yarn test",
	"pytest", "py.test", "jest", "vitest", "mocha", "rspec", "phpunit",
	"cargo test", "mvn test", "gradle test", "ctest", "unittest",
	"bun test", "make test",
}

var installKeywords = []string{
	"npm install", "npm i ", "npm ci", "pnpm install", "pnpm add",
	"yarn add", "yarn install", "pip install", "pip3 install", "uv add",
	"uv pip install", "go get", "go mod download", "go mod tidy",
	"cargo add", "bundle install", "composer install", "poetry add",
	"apt install", "apt-get install", "brew install", "gem install",
}

var commitKeywords = []string{
	"git commit", "git push", "git tag",
}

// shellState inspects a shell command and picks the most specific state.
func shellState(cmd string) activity.State {
	c := strings.ToLower(cmd)
	for _, kw := range testKeywords {
		if strings.Contains(c, kw) {
			return activity.StateTesting
		}
	}
	for _, kw := range installKeywords {
		if strings.Contains(c, kw) {
			return activity.StateInstalling
		}
	}
	for _, kw := range commitKeywords {
		if strings.Contains(c, kw) {
			return activity.StateCommitting
		}
	}
	return activity.StateExecuting
}

// commandVerb returns a short past-tense description of a git command for
// result details.
func commandVerb(cmd string) string {
	c := strings.ToLower(cmd)
	switch {
	case strings.Contains(c, "git commit"):
		return "committed"
	case strings.Contains(c, "git push"):
		return "pushed"
	case strings.Contains(c, "git tag"):
		return "tagged"
	default:
		return "command succeeded"
	}
}
