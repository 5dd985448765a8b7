package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/avelinecho/pixelpet/internal/activity"
)

// ToolResult carries the raw outcome of a tool invocation as reported by
// the front-end adapter. Most front-ends do not report a structured
// success/failure signal, so Text and Stderr are free-form and success must
// be inferred forensically.
type ToolResult struct {
	Text      string // stdout-equivalent channel
	Stderr    string // stderr-equivalent channel, often empty
	ErrorFlag bool   // explicit failure signal from the caller, when present
}

// ChangeStats summarizes the structural size of an edit.
type ChangeStats struct {
	AddedLines   int
	RemovedLines int
}

// Outcome is the result of forensic classification: the state the session
// should show, a short detail, and structural metadata for edit tools.
type Outcome struct {
	State  activity.State
	Detail string
	Meta   *ChangeStats
}

// exitCodePatterns match the common phrasings tools use to report an exit
// code in free text. The first capture group is the numeric code.
var exitCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)exit code[:\s]+(\d+)`),
	regexp.MustCompile(`(?i)exited with (?:code |status )?(\d+)`),
	regexp.MustCompile(`(?i)exit status[:\s]+(\d+)`),
	regexp.MustCompile(`(?i)returned non-zero exit status (\d+)`),
}

// interruptedPhrases mark a tool call the user cancelled mid-flight.
var interruptedPhrases = []string{
	"request interrupted",
	"interrupted by user",
	"operation was aborted",
	"tool use was rejected",
	"user rejected",
}

// failurePhrases are positive failure signals in free text. Every match is
// re-checked against failureGuards below; the guard always wins, since the
// same words show up in both error reports and ordinary success chatter.
var failurePhrases = []string{
	"command not found",
	"no such file or directory",
	"permission denied",
	"connection refused",
	"fatal:",
	"panic:",
	"traceback (most recent call last)",
	"segmentation fault",
	"npm err!",
	"err!",
	"error",
	"failed",
	"failure",
	"exception",
	"cannot find module",
	"undefined reference",
	"out of memory",
}

// failureGuards suppress a positive failure match. These are phrases and
// identifiers in which failure-sounding words appear innocently.
var failureGuards = []string{
	"0 errors",
	"no errors",
	"zero errors",
	"0 failed",
	"no failures",
	"0 failures",
	"error handling",
	"error-handling",
	"errorhandler",
	"error_handler",
	"onerror",
	"error boundary",
	"errors.go",
	"error.go",
	"errors.ts",
	"error.ts",
	"errors_test",
	"warning",
}

// rateLimitPhrases detect quota/throughput exhaustion, which gets its own
// state distinct from generic failure.
var rateLimitPhrases = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"429",
	"too many requests",
	"quota exceeded",
	"quota exhausted",
	"usage limit",
	"throttled",
	"overloaded",
	"capacity constraints",
}

// rateLimitGuards suppress rate-limit matches on source code identifiers
// that merely talk about throttling.
var rateLimitGuards = []string{
	"usethrottle",
	"throttle(",
	"throttled(",
	"debounce",
	"ratelimiter",
	"rate limiter",
	"throttling test",
}

// testPassCount extracts a passed-test count from runner output.
var testPassCount = regexp.MustCompile(`(?i)(\d+)\s+(?:tests?\s+)?(?:passed|passing|ok)`)

// ClassifyResult infers success or failure from a tool's raw result and maps
// it to a post-result state. The decision tree short-circuits in order:
// explicit error flag, interruption, inferred exit code, stderr failure
// phrase, stdout failure phrase (shell tools only), then a per-category
// success mapping. It never fails: empty or unparseable text simply falls
// through to the success branch, the safer default for a cosmetic display.
func ClassifyResult(toolName string, toolInput map[string]any, res ToolResult) Outcome {
	combined := res.Text + "\n" + res.Stderr

	// 1. Explicit error flag from the caller.
	if res.ErrorFlag {
		return failureOutcome(combined, "tool failed")
	}

	// 2. Explicit interruption. Not a failure, not a success: the user
	// stopped the agent, so the pet just waits.
	if matchesAny(combined, interruptedPhrases) {
		return Outcome{State: activity.StateWaiting, Detail: "interrupted"}
	}

	// 3. Exit code reported in text.
	if code, ok := inferExitCode(combined); ok && code != 0 {
		return failureOutcome(combined, fmt.Sprintf("exit code %d", code))
	}

	// 4. Failure phrase on the stderr channel.
	if hasFailurePhrase(res.Stderr) {
		return failureOutcome(combined, failureDetail(res.Stderr))
	}

	// 5. Failure phrase on stdout, but only for shell tools. Read/search/edit
	// results echo file contents, which legitimately contain words like
	// "error:" without anything having failed.
	if IsShellCategory(toolName) && hasFailurePhrase(res.Text) {
		return failureOutcome(combined, failureDetail(res.Text))
	}

	// 6. Success, shaped per tool category.
	return successOutcome(toolName, toolInput, res)
}

// failureOutcome builds an error outcome, relabeling to ratelimited when the
// text carries a quota-exhaustion signal.
func failureOutcome(text, detail string) Outcome {
	if IsRateLimited(text) {
		return Outcome{State: activity.StateRateLimited, Detail: "rate limited"}
	}
	return Outcome{State: activity.StateError, Detail: truncateDetail(detail)}
}

// hasFailurePhrase reports whether text carries a positive failure phrase
// that survives the false-positive guard list. Guard-wins-always: any guard
// phrase anywhere in the text suppresses the match.
func hasFailurePhrase(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if !matchesAnyLower(lower, failurePhrases) {
		return false
	}
	return !matchesAnyLower(lower, failureGuards)
}

// IsRateLimited reports whether text signals quota or throughput exhaustion,
// subject to its own false-positive guards.
func IsRateLimited(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if !matchesAnyLower(lower, rateLimitPhrases) {
		return false
	}
	return !matchesAnyLower(lower, rateLimitGuards)
}

// inferExitCode scans text for an "exit code: N" style phrasing.
func inferExitCode(text string) (int, bool) {
	for _, re := range exitCodePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil {
				return code, true
			}
		}
	}
	return 0, false
}

// failureDetail pulls the first failing line out of text so the display can
// show something more specific than "tool failed".
func failureDetail(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if matchesAnyLower(strings.ToLower(line), failurePhrases) {
			return truncateDetail(strings.TrimSpace(line))
		}
	}
	return "tool failed"
}

// successOutcome maps a successful result to its category's reward state.
func successOutcome(toolName string, toolInput map[string]any, res ToolResult) Outcome {
	switch {
	case IsEditCategory(toolName):
		meta := editStats(toolInput)
		detail := "edited"
		if base := fileBasename(toolInput); base != "" {
			detail = base
		}
		if meta.AddedLines > 0 || meta.RemovedLines > 0 {
			detail = truncateDetail(fmt.Sprintf("+%d/-%d %s", meta.AddedLines, meta.RemovedLines, detail))
		}
		return Outcome{State: activity.StateProud, Detail: truncateDetail(detail), Meta: &meta}

	case IsReadCategory(toolName):
		detail := fileBasename(toolInput)
		if detail == "" {
			detail = patternFrom(toolInput)
		}
		if detail == "" {
			detail = "done"
		}
		return Outcome{State: activity.StateSatisfied, Detail: truncateDetail(detail)}

	case IsShellCategory(toolName):
		return Outcome{State: activity.StateRelieved, Detail: shellSuccessDetail(toolInput, res.Text)}

	default:
		detail := "done"
		if toolName != "" {
			detail = toolName
		}
		return Outcome{State: activity.StateSatisfied, Detail: truncateDetail(detail)}
	}
}

// shellSuccessDetail refines a generic shell success into test/build/git
// phrasing when the command or output gives it away.
func shellSuccessDetail(toolInput map[string]any, stdout string) string {
	cmd := commandFrom(toolInput)
	switch shellState(cmd) {
	case activity.StateTesting:
		if m := testPassCount.FindStringSubmatch(stdout); m != nil {
			return truncateDetail(m[1] + " tests passed")
		}
		return "tests passed"
	case activity.StateInstalling:
		return "dependencies installed"
	case activity.StateCommitting:
		return commandVerb(cmd)
	}
	lower := strings.ToLower(stdout)
	if strings.Contains(strings.ToLower(cmd), "build") ||
		strings.Contains(lower, "build succeeded") ||
		strings.Contains(lower, "built successfully") {
		return "build succeeded"
	}
	return "command succeeded"
}

// editStats computes an added/removed line delta from the edit's old and new
// text. Write-style tools contribute only added lines.
func editStats(toolInput map[string]any) ChangeStats {
	oldText := inputString(toolInput, "old_string", "oldText", "old_str")
	newText := inputString(toolInput, "new_string", "newText", "new_str")
	if oldText == "" && newText == "" {
		newText = inputString(toolInput, "content", "contents", "text", "new_source")
	}
	return ChangeStats{
		AddedLines:   countLines(newText),
		RemovedLines: countLines(oldText),
	}
}

func matchesAny(text string, phrases []string) bool {
	return matchesAnyLower(strings.ToLower(text), phrases)
}

func matchesAnyLower(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
