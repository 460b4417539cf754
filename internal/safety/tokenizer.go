package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Segment is one command of a compound shell line, isolated by top-level
// control operators.
type Segment struct {
	// Text is the trimmed source text of the segment.
	Text string
	// Words is the shell-split form of Text, quotes removed.
	Words []string
	// Executable is the command name with any leading NAME=value
	// assignments skipped and any path prefix stripped. Empty when the
	// segment consists only of assignments.
	Executable string
	// Index of the executable within Words, -1 when Executable is empty.
	head int
}

// Args returns the words following the executable.
func (s Segment) Args() []string {
	if s.head < 0 || s.head+1 >= len(s.Words) {
		return nil
	}
	return s.Words[s.head+1:]
}

var assignmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// Tokenize splits raw into segments on top-level ;, &&, ||, |, & and
// newlines, honouring single quotes, double quotes and backslash escapes.
// A "||" is one operator, never two pipes. Redirections such as 2>&1, &> and
// >| are not separators.
//
// Comments are removed first, as the shell would (see StripComments).
//
// Unbalanced quoting yields ErrUnparseable; there is no best-effort
// fallback.
func Tokenize(raw string) ([]Segment, error) {
	texts, err := splitSegments(StripComments(raw))
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, ErrEmptyCommand
	}

	segments := make([]Segment, 0, len(texts))
	for _, text := range texts {
		words, err := shlex.Split(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		if len(words) == 0 {
			continue
		}
		exe, head := executableOf(words)
		segments = append(segments, Segment{Text: text, Words: words, Executable: exe, head: head})
	}
	if len(segments) == 0 {
		return nil, ErrEmptyCommand
	}
	return segments, nil
}

// ExtractCommands returns the executable name of every segment of raw, in
// order. Assignment-only segments contribute nothing.
func ExtractCommands(raw string) ([]string, error) {
	segments, err := Tokenize(raw)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, seg := range segments {
		if seg.Executable != "" {
			names = append(names, seg.Executable)
		}
	}
	return names, nil
}

// wordBreaks are the unquoted bytes after which a new shell word begins.
const wordBreaks = " \t\n;&|()<>"

// StripComments removes shell comments from raw: an unquoted, unescaped #
// at the start of a word through to the end of its line. The newline is
// kept. Quotes inside a comment are comment text and open nothing.
func StripComments(raw string) string {
	var b strings.Builder
	var inSingle, inDouble, escaped bool
	wordStart := true
	// beforeEscape is wordStart before a pending backslash. A
	// backslash-newline is a line continuation and leaves it unchanged.
	beforeEscape := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
			if c == '\n' {
				wordStart = beforeEscape
			} else {
				wordStart = false
			}
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
		case c == '\\':
			escaped = true
			beforeEscape = wordStart
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
			wordStart = false
		case c == '"':
			inDouble = true
			wordStart = false
		case c == '#' && wordStart:
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			if i < len(raw) {
				b.WriteByte('\n')
			}
			continue
		default:
			wordStart = strings.IndexByte(wordBreaks, c) >= 0
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitSegments performs the quote-aware separator scan.
func splitSegments(raw string) ([]string, error) {
	var (
		segments []string
		cur      strings.Builder
		inSingle bool
		inDouble bool
		escaped  bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			segments = append(segments, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
			cur.WriteByte(c)
			continue
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
			cur.WriteByte(c)
			continue
		case c == '\\':
			escaped = true
			cur.WriteByte(c)
			continue
		case inDouble:
			if c == '"' {
				inDouble = false
			}
			cur.WriteByte(c)
			continue
		}

		switch c {
		case '\'':
			inSingle = true
			cur.WriteByte(c)
		case '"':
			inDouble = true
			cur.WriteByte(c)
		case ';', '\n':
			flush()
		case '&':
			if isRedirectAmpersand(raw, i) {
				cur.WriteByte(c)
				continue
			}
			if i+1 < len(raw) && raw[i+1] == '&' {
				i++
			}
			flush()
		case '|':
			if i > 0 && raw[i-1] == '>' {
				// >| clobber redirection
				cur.WriteByte(c)
				continue
			}
			if i+1 < len(raw) && raw[i+1] == '|' {
				i++
			}
			flush()
		default:
			cur.WriteByte(c)
		}
	}

	if inSingle || inDouble {
		return nil, fmt.Errorf("%w: unterminated quote", ErrUnparseable)
	}
	if escaped {
		return nil, fmt.Errorf("%w: trailing backslash", ErrUnparseable)
	}
	flush()
	return segments, nil
}

// isRedirectAmpersand reports whether the & at raw[i] belongs to a
// redirection (2>&1, <&0, &>file) rather than being a control operator.
func isRedirectAmpersand(raw string, i int) bool {
	if i > 0 && (raw[i-1] == '>' || raw[i-1] == '<') {
		return true
	}
	return i+1 < len(raw) && raw[i+1] == '>'
}

// executableOf skips leading assignments and strips any path prefix from
// the first remaining word.
func executableOf(words []string) (string, int) {
	for i, w := range words {
		if assignmentPattern.MatchString(w) {
			continue
		}
		if idx := strings.LastIndex(w, "/"); idx >= 0 && idx < len(w)-1 {
			return w[idx+1:], i
		}
		return w, i
	}
	return "", -1
}

// baseName strips a leading path from a word.
func baseName(w string) string {
	if idx := strings.LastIndex(w, "/"); idx >= 0 && idx < len(w)-1 {
		return w[idx+1:]
	}
	return w
}
