package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ferdousbhai/create-fastreact/internal/sandbox"
)

const (
	// DefaultAPIBaseURL is the Anthropic API endpoint root.
	DefaultAPIBaseURL = "https://api.anthropic.com"
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultMaxTokens bounds one model response.
	DefaultMaxTokens = 8192
	// DefaultMaxTurns bounds the tool-use round trips of one session.
	DefaultMaxTurns = 50

	anthropicVersion = "2023-06-01"
	maxResponseSize  = 10 * 1024 * 1024
)

// APIConfig configures an APIRunner. Everything the runner needs is passed
// here; nothing is read from the environment at call time.
type APIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	MaxTurns  int
	Timeout   time.Duration
	Verbose   bool

	// Executor runs the agent's bash tool calls.
	Executor   *sandbox.Executor
	HTTPClient *http.Client
	Out        io.Writer
	Logger     *zap.Logger
}

// APIRunner runs a session against the Anthropic Messages API with a small
// tool set: bash (through the sandbox), read_file and write_file.
type APIRunner struct {
	cfg APIConfig
}

// NewAPIRunner returns a runner with defaults filled in.
func NewAPIRunner(cfg APIConfig) *APIRunner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Executor == nil {
		cfg.Executor = sandbox.New(nil)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &APIRunner{cfg: cfg}
}

// Name implements Runner.
func (r *APIRunner) Name() string { return "api" }

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

// apiBlock covers the text, tool_use and tool_result block shapes.
type apiBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type apiResponse struct {
	ID         string     `json:"id"`
	Content    []apiBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Invoke implements Runner.
func (r *APIRunner) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	if strings.TrimSpace(req.Prompt) == "" {
		return errorResult(ErrEmptyPrompt, "", "", 0)
	}
	if r.cfg.APIKey == "" {
		return errorResult(ErrNoAPIKey, "", "", 0)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	tools := newToolbox(req.WorkDir, r.cfg.Executor)
	var transcript strings.Builder
	messages := []apiMessage{{
		Role:    "user",
		Content: []apiBlock{{Type: "text", Text: req.Prompt}},
	}}
	var finalText string

	for turn := 0; turn < r.cfg.MaxTurns; turn++ {
		resp, err := r.send(runCtx, messages, tools.definitions())
		if err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = &TimeoutError{Timeout: r.cfg.Timeout}
			}
			return errorResult(err, transcript.String(), "", time.Since(start))
		}
		r.cfg.Logger.Debug("model turn",
			zap.String("mode", req.Mode),
			zap.Int("turn", turn+1),
			zap.String("stop_reason", resp.StopReason),
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens))

		messages = append(messages, apiMessage{Role: "assistant", Content: resp.Content})

		var results []apiBlock
		var texts []string
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				texts = append(texts, block.Text)
				fmt.Fprintf(&transcript, "%s\n", block.Text)
				r.echo(summarize(block.Text, 100))
			case "tool_use":
				out, isErr := tools.run(runCtx, block.Name, block.Input)
				fmt.Fprintf(&transcript, "[tool %s] %s\n%s\n", block.Name, string(block.Input), out)
				r.echo("-> " + block.Name + toolDetail(block.Input))
				if out == "" {
					out = "(no output)"
				}
				results = append(results, apiBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   out,
					IsError:   isErr,
				})
			}
		}
		if len(texts) > 0 {
			finalText = strings.Join(texts, "\n")
		}

		if resp.StopReason != "tool_use" || len(results) == 0 {
			return Result{
				Status:   StatusContinue,
				Output:   finalText,
				Stdout:   transcript.String(),
				Duration: time.Since(start),
			}
		}
		messages = append(messages, apiMessage{Role: "user", Content: results})
	}

	r.cfg.Logger.Warn("session reached the turn limit", zap.Int("max_turns", r.cfg.MaxTurns))
	return Result{
		Status:   StatusContinue,
		Output:   finalText,
		Stdout:   transcript.String(),
		Duration: time.Since(start),
	}
}

func (r *APIRunner) echo(line string) {
	if r.cfg.Verbose && line != "" {
		fmt.Fprintf(r.cfg.Out, "    %s\n", line)
	}
}

// messagesURL builds the messages endpoint from the configured base URL.
func (r *APIRunner) messagesURL() string {
	return strings.TrimSuffix(r.cfg.BaseURL, "/") + "/v1/messages"
}

func (r *APIRunner) send(ctx context.Context, messages []apiMessage, tools []apiTool) (*apiResponse, error) {
	body, err := json.Marshal(apiRequest{
		Model:     r.cfg.Model,
		MaxTokens: r.cfg.MaxTokens,
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", r.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := r.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: summarize(string(respBody), 200)}
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse API response: %w", err)
	}
	return &resp, nil
}
