package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Event types emitted by the runtime's --output-format stream-json.
const (
	EventTypeSystem    = "system"
	EventTypeAssistant = "assistant"
	EventTypeUser      = "user"
	EventTypeResult    = "result"
)

// StreamEvent is one line of stream-json output. Only the fields the runner
// reports on are decoded; the rest are ignored.
type StreamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// Message is set on assistant and user events.
	Message *struct {
		Content []ContentBlock `json:"content"`
	} `json:"message,omitempty"`

	// Result fields.
	Result       string  `json:"result,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
}

// ContentBlock is one block of a message.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ParseStreamEvent unmarshals one JSON line.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, err
	}
	return ev, nil
}

// StreamProgress accumulates what a stream has reported so far.
type StreamProgress struct {
	SessionID string
	Model     string
	ToolCount int
	LastTool  string
	NumTurns  int
	CostUSD   float64
	Result    string
	IsError   bool
	// Done is set once the result event arrives.
	Done bool
}

func (p *StreamProgress) apply(ev StreamEvent) {
	switch ev.Type {
	case EventTypeSystem:
		if ev.SessionID != "" {
			p.SessionID = ev.SessionID
		}
		if ev.Model != "" {
			p.Model = ev.Model
		}
	case EventTypeAssistant:
		if ev.Message == nil {
			return
		}
		for _, b := range ev.Message.Content {
			if b.Type == "tool_use" {
				p.ToolCount++
				p.LastTool = b.Name
			}
		}
	case EventTypeResult:
		p.Done = true
		p.Result = ev.Result
		p.IsError = ev.IsError
		p.NumTurns = ev.NumTurns
		p.CostUSD = ev.TotalCostUSD
	}
}

// ParseStream reads newline-delimited events from r until EOF. Malformed
// lines are skipped so a partial stream still yields what it can. onEvent,
// if set, is called after every parsed event.
func ParseStream(r io.Reader, onEvent func(StreamEvent, StreamProgress)) StreamProgress {
	reader := newLineReader(r)
	var p StreamProgress
	for {
		line, readErr := reader.readLine()
		if len(line) > 0 {
			if ev, err := ParseStreamEvent(line); err == nil {
				p.apply(ev)
				if onEvent != nil {
					onEvent(ev, p)
				}
			}
		}
		if readErr != nil {
			return p
		}
	}
}

// describeEvent renders an event as short human readable lines.
func describeEvent(ev StreamEvent) []string {
	switch ev.Type {
	case EventTypeSystem:
		if ev.Subtype == "init" && ev.Model != "" {
			return []string{"session started (" + ev.Model + ")"}
		}
	case EventTypeAssistant:
		if ev.Message == nil {
			return nil
		}
		var lines []string
		for _, b := range ev.Message.Content {
			switch b.Type {
			case "text":
				if s := summarize(b.Text, 100); s != "" {
					lines = append(lines, s)
				}
			case "tool_use":
				lines = append(lines, "-> "+b.Name+toolDetail(b.Input))
			}
		}
		return lines
	case EventTypeResult:
		if ev.IsError {
			return []string{"session ended with an error"}
		}
		return []string{"session finished"}
	}
	return nil
}

// toolDetail picks the most telling input field of a tool call.
func toolDetail(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"command", "file_path", "path", "pattern"} {
		if v, ok := fields[key].(string); ok && v != "" {
			return ": " + summarize(v, 80)
		}
	}
	return ""
}

// summarize collapses whitespace and trims s to maxLen bytes.
func summarize(s string, maxLen int) string {
	trimmed := strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen-3] + "..."
}

type lineReader struct {
	buf []byte
	r   io.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{buf: make([]byte, 0, 64*1024), r: r}
}

func (lr *lineReader) readLine() ([]byte, error) {
	for {
		if idx := bytes.IndexByte(lr.buf, '\n'); idx >= 0 {
			line := bytes.TrimSpace(lr.buf[:idx])
			lr.buf = lr.buf[idx+1:]
			return line, nil
		}

		chunk := make([]byte, 64*1024)
		n, err := lr.r.Read(chunk)
		if n > 0 {
			lr.buf = append(lr.buf, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				line := bytes.TrimSpace(lr.buf)
				lr.buf = lr.buf[:0]
				return line, io.EOF
			}
			return nil, err
		}
	}
}
