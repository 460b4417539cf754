package safety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// command is the parsed form every rule inspects.
type command struct {
	raw      string
	segments []Segment
}

// executables returns the executable of every segment.
func (c *command) executables() []string {
	names := make([]string, 0, len(c.segments))
	for _, seg := range c.segments {
		if seg.Executable != "" {
			names = append(names, seg.Executable)
		}
	}
	return names
}

// rule inspects a command and returns a rejection reason, or "" to pass.
type rule func(v *Validator, c *command) string

// checkAllowlist rejects any segment whose executable is not allowlisted.
func checkAllowlist(v *Validator, c *command) string {
	for _, name := range c.executables() {
		if !v.policy.AllowedCommands[name] {
			return fmt.Sprintf("command '%s' is not in the allowed commands list", name)
		}
	}
	return ""
}

var hiddenFindActions = map[string]bool{
	"-exec": true, "-execdir": true, "-ok": true, "-okdir": true, "-delete": true,
}

// checkHiddenCommands rejects constructs that run a command which is not a
// segment head: command and process substitution, and find's exec actions.
func checkHiddenCommands(_ *Validator, c *command) string {
	if construct := findSubstitution(c.raw); construct != "" {
		return fmt.Sprintf("command substitution (%s) is not allowed", construct)
	}
	for _, seg := range c.segments {
		if seg.Executable != "find" {
			continue
		}
		for _, arg := range seg.Args() {
			if hiddenFindActions[arg] {
				return fmt.Sprintf("find %s is not allowed", arg)
			}
		}
	}
	return ""
}

// findSubstitution returns the first substitution construct found outside
// single quotes, or "".
func findSubstitution(raw string) string {
	inSingle := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		if inSingle {
			if c == '\'' {
				inSingle = false
			}
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '\'':
			inSingle = true
		case '`':
			return "`...`"
		case '$', '<', '>':
			if i+1 < len(raw) && raw[i+1] == '(' {
				return string(c) + "(...)"
			}
		}
	}
	return ""
}

// checkDestructiveRemove applies the disposable-directory rule to every rm
// found in the command, head of a segment or not.
func checkDestructiveRemove(v *Validator, c *command) string {
	for _, seg := range c.segments {
		for i, w := range seg.Words {
			if baseName(w) != "rm" {
				continue
			}
			if reason := v.checkRemoveSpan(seg.Words[i+1:]); reason != "" {
				return reason
			}
		}
	}
	return ""
}

// checkRemoveSpan inspects the words after one rm, up to the end of its
// segment.
func (v *Validator) checkRemoveSpan(words []string) string {
	destructive := false
	var targets []string
	endOfFlags := false
	for _, w := range words {
		if !endOfFlags && w == "--" {
			endOfFlags = true
			continue
		}
		if !endOfFlags && strings.HasPrefix(w, "-") && len(w) > 1 {
			if isDestructiveRemoveFlag(w) {
				destructive = true
			}
			continue
		}
		targets = append(targets, w)
	}
	if !destructive {
		return ""
	}
	if len(targets) == 0 {
		return "rm with recursive or force flags requires an explicit target"
	}
	for _, target := range targets {
		if !isDisposablePath(target, v.policy.DisposableDirs) {
			return fmt.Sprintf("rm -rf is only allowed on %s, not '%s'", v.disposableList(), target)
		}
	}
	return ""
}

func isDestructiveRemoveFlag(flag string) bool {
	if strings.HasPrefix(flag, "--") {
		return flag == "--recursive" || flag == "--force"
	}
	return strings.ContainsAny(flag[1:], "rRf")
}

// isDisposablePath reports whether p is, or ends in, a disposable directory.
func isDisposablePath(p string, dirs map[string]bool) bool {
	cleaned := strings.TrimRight(p, "/")
	if cleaned == "" {
		return false
	}
	return dirs[cleaned[strings.LastIndex(cleaned, "/")+1:]]
}

func (v *Validator) disposableList() string {
	names := make([]string, 0, len(v.policy.DisposableDirs))
	for name := range v.policy.DisposableDirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// checkProcessTermination restricts pkill to development processes and
// forbids kill by numeric process id.
func checkProcessTermination(v *Validator, c *command) string {
	for _, seg := range c.segments {
		switch seg.Executable {
		case "pkill":
			if reason := v.checkPkill(seg.Args()); reason != "" {
				return reason
			}
		case "kill":
			if reason := checkKill(seg.Args()); reason != "" {
				return reason
			}
		}
	}
	return ""
}

func (v *Validator) checkPkill(args []string) string {
	if len(args) == 0 {
		return "pkill requires a process name"
	}
	pattern := args[len(args)-1]
	if strings.HasPrefix(pattern, "-") {
		return "pkill requires a process name"
	}
	for _, name := range v.policy.DevProcesses {
		if strings.Contains(pattern, name) {
			return ""
		}
	}
	return fmt.Sprintf("pkill only allowed for dev processes (%s), not '%s'",
		strings.Join(v.policy.DevProcesses, ", "), pattern)
}

var numericPID = regexp.MustCompile(`^-?[0-9]+$`)

func checkKill(args []string) string {
	if len(args) > 0 {
		switch {
		case args[0] == "-l" || args[0] == "-L":
			return ""
		case args[0] == "-s" || args[0] == "-n":
			if len(args) < 2 {
				return ""
			}
			args = args[2:]
		case strings.HasPrefix(args[0], "-"):
			// -9, -KILL, -SIGTERM
			args = args[1:]
		}
	}
	for _, arg := range args {
		if numericPID.MatchString(arg) {
			return fmt.Sprintf("kill by process id (%s) is not allowed; use pkill with a dev process name", arg)
		}
	}
	return ""
}

// checkRemoteExecution blocks fetch-and-execute: a downloader sharing a
// command line with an interpreter, or piping into one. Every word counts,
// not only segment heads, so launchers such as `uv run python` or
// `npx node` are caught.
func checkRemoteExecution(v *Validator, c *command) string {
	var downloader, interpreter string
	for _, seg := range c.segments {
		for _, w := range seg.Words {
			if strings.Contains(w, "://") {
				continue
			}
			name := baseName(w)
			if downloader == "" && v.policy.Downloaders[name] {
				downloader = name
			}
			if interpreter == "" && v.policy.Interpreters[name] {
				interpreter = name
			}
		}
	}
	if v.pipeToInterpreter != nil && v.pipeToInterpreter.MatchString(c.raw) {
		return "piping a download into an interpreter is not allowed"
	}
	if downloader != "" && interpreter != "" {
		return fmt.Sprintf("%s cannot be combined with %s in one command", downloader, interpreter)
	}
	return ""
}

// buildPipePattern compiles the raw-string downloader|interpreter pattern.
// Any words may sit between the pipe and the interpreter (launchers,
// assignments, a path prefix).
func buildPipePattern(p Policy) *regexp.Regexp {
	if len(p.Downloaders) == 0 || len(p.Interpreters) == 0 {
		return nil
	}
	return regexp.MustCompile(`\b(?:` + alternation(p.Downloaders) + `)\b[^;&\n]*?\|(?:[^;&|\n]*?[\s/])?(?:` +
		alternation(p.Interpreters) + `)\b`)
}

func alternation(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so python3 wins over python.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}
