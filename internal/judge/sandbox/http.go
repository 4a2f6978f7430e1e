package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/shlex"
)

const (
	compileErrorPrefix  = "compile error: "
	outputLimitExceeded = "output limit exceeded"
	outputLimitExitCode = 1
)

// LanguageConfig maps a submission language to an executor runtime.
type LanguageConfig struct {
	Runtime  string `yaml:"runtime"`
	Version  string `yaml:"version"`
	FileName string `yaml:"fileName"`
	// Args is a shell-quoted argument string passed to the program.
	Args string `yaml:"args"`
}

// HTTPConfig configures the executor client.
type HTTPConfig struct {
	BaseURL          string                    `yaml:"baseURL"`
	CompileTimeout   time.Duration             `yaml:"compileTimeout"`
	RunTimeout       time.Duration             `yaml:"runTimeout"`
	RequestSlack     time.Duration             `yaml:"requestSlack"`
	MaxResponseBytes int64                     `yaml:"maxResponseBytes"`
	Languages        map[string]LanguageConfig `yaml:"languages"`
}

// HTTPClient calls an executor exposing POST /api/v2/execute.
type HTTPClient struct {
	baseURL          string
	compileTimeout   time.Duration
	runTimeout       time.Duration
	slack            time.Duration
	maxResponseBytes int64
	languages        map[string]resolvedLanguage
	http             *http.Client
}

type resolvedLanguage struct {
	LanguageConfig
	args []string
}

type executeFile struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language       string        `json:"language"`
	Version        string        `json:"version"`
	Files          []executeFile `json:"files"`
	Stdin          string        `json:"stdin"`
	Args           []string      `json:"args,omitempty"`
	CompileTimeout int64         `json:"compile_timeout,omitempty"`
	RunTimeout     int64         `json:"run_timeout,omitempty"`
}

type stageResult struct {
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	Output   string  `json:"output"`
	Code     *int    `json:"code"`
	Signal   *string `json:"signal"`
	WallTime int64   `json:"wall_time"`
}

type executeResponse struct {
	Compile *stageResult `json:"compile"`
	Run     stageResult  `json:"run"`
	Message string       `json:"message"`
}

// NewHTTPClient validates cfg and parses each language's argument string.
func NewHTTPClient(cfg HTTPConfig, httpClient *http.Client) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sandbox baseURL is required")
	}
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("at least one sandbox language is required")
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = 10 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 3 * time.Second
	}
	if cfg.RequestSlack <= 0 {
		cfg.RequestSlack = 2 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 8 << 20
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	languages := make(map[string]resolvedLanguage, len(cfg.Languages))
	for name, lang := range cfg.Languages {
		if lang.Runtime == "" {
			return nil, fmt.Errorf("language %q: runtime is required", name)
		}
		if lang.Version == "" {
			lang.Version = "*"
		}
		args, err := shlex.Split(lang.Args)
		if err != nil {
			return nil, fmt.Errorf("language %q: parse args: %w", name, err)
		}
		languages[strings.ToLower(name)] = resolvedLanguage{LanguageConfig: lang, args: args}
	}

	return &HTTPClient{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		compileTimeout:   cfg.CompileTimeout,
		runTimeout:       cfg.RunTimeout,
		slack:            cfg.RequestSlack,
		maxResponseBytes: cfg.MaxResponseBytes,
		languages:        languages,
		http:             httpClient,
	}, nil
}

// Supports reports whether a runtime is configured for language.
func (c *HTTPClient) Supports(language string) bool {
	_, ok := c.languages[strings.ToLower(language)]
	return ok
}

// Execute runs one program against one stdin.
func (c *HTTPClient) Execute(ctx context.Context, req Request) (Result, error) {
	lang, ok := c.languages[strings.ToLower(req.Language)]
	if !ok {
		return Result{}, &TransportError{Op: "resolve language", Err: fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)}
	}

	runTimeout := req.TimeLimit
	if runTimeout <= 0 {
		runTimeout = c.runTimeout
	}
	payload, err := json.Marshal(executeRequest{
		Language:       lang.Runtime,
		Version:        lang.Version,
		Files:          []executeFile{{Name: lang.FileName, Content: req.Code}},
		Stdin:          req.Stdin,
		Args:           lang.args,
		CompileTimeout: c.compileTimeout.Milliseconds(),
		RunTimeout:     runTimeout.Milliseconds(),
	})
	if err != nil {
		return Result{}, &TransportError{Op: "encode request", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.compileTimeout+runTimeout+c.slack)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/v2/execute", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, &TransportError{Op: "execute", Timeout: isTimeout(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, &TransportError{Op: "read response", Timeout: isTimeout(err), Err: err}
	}
	overflow := int64(len(body)) > c.maxResponseBytes
	if overflow {
		body = body[:c.maxResponseBytes]
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &TransportError{Op: "execute", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}
	if overflow {
		// The program wrote more than the executor response may carry.
		return Result{
			Stderr:   fmt.Sprintf("%s: executor response larger than %d bytes", outputLimitExceeded, c.maxResponseBytes),
			ExitCode: outputLimitExitCode,
			Elapsed:  elapsed,
		}, nil
	}

	var decoded executeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, &TransportError{Op: "decode response", Err: err}
	}
	return decoded.toResult(elapsed), nil
}

func (r executeResponse) toResult(elapsed time.Duration) Result {
	if r.Compile != nil && exitCode(*r.Compile) != 0 {
		msg := r.Compile.Stderr
		if msg == "" {
			msg = r.Compile.Output
		}
		return Result{
			Stdout:   r.Compile.Stdout,
			Stderr:   compileErrorPrefix + msg,
			ExitCode: exitCode(*r.Compile),
			Elapsed:  elapsed,
		}
	}

	res := Result{
		Stdout:   r.Run.Stdout,
		Stderr:   r.Run.Stderr,
		ExitCode: exitCode(r.Run),
		Elapsed:  elapsed,
	}
	if r.Run.Signal != nil && *r.Run.Signal != "" {
		res.Stderr = strings.TrimSpace(res.Stderr + "\nkilled by signal " + *r.Run.Signal)
	}
	if r.Run.WallTime > 0 {
		res.Elapsed = time.Duration(r.Run.WallTime) * time.Millisecond
	}
	return res
}

// exitCode treats a missing code (killed process) as failure.
func exitCode(s stageResult) int {
	if s.Code != nil {
		if *s.Code == 0 && s.Signal != nil && *s.Signal != "" {
			return 1
		}
		return *s.Code
	}
	if s.Signal != nil && *s.Signal != "" {
		return 137
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
