// Package judge proxies code execution to the Judge0 sandbox. It is
// deliberately isolated from the synchronization core: no shared
// state, consumed only by its own HTTP handler.
package judge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"cocreate/internal/utils"
)

// Judge0 language ids.
var languageIDs = map[string]int{
	"java":   62, // Java (OpenJDK 13.0.1)
	"python": 71, // Python (3.8.1)
	"cpp":    54, // C++ (GCC 9.2.0)
}

var (
	ErrUnsupportedLanguage = errors.New("unsupported language, supported: java, python, cpp")
	ErrNoAPIKey            = errors.New("server configuration error: API key not found")
	ErrTimeout             = errors.New("execution timeout: code took too long to execute")
)

// UpstreamError reports a failed round trip to the sandbox.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
}

type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

type Result struct {
	Success       bool   `json:"success"`
	Output        string `json:"output"`
	ExecutionTime string `json:"executionTime,omitempty"`
	Memory        string `json:"memory,omitempty"`
	Status        string `json:"status"`
	Input         string `json:"input,omitempty"`
}

const cacheTTL = 15 * time.Minute

type Client struct {
	http    *http.Client
	log     *utils.Logger
	baseURL string
	apiKey  string
	apiHost string
	cache   *redis.Client // nil disables caching

	pollInterval time.Duration
	maxAttempts  int
}

// New builds a client against the public Judge0 endpoint. cache may
// be nil.
func New(log *utils.Logger, apiKey, apiHost string, cache *redis.Client) *Client {
	return &Client{
		http:         &http.Client{Timeout: 15 * time.Second},
		log:          log,
		baseURL:      "https://" + apiHost,
		apiKey:       apiKey,
		apiHost:      apiHost,
		cache:        cache,
		pollInterval: time.Second,
		maxAttempts:  30,
	}
}

// NewWithBaseURL overrides the endpoint (used in tests).
func NewWithBaseURL(log *utils.Logger, baseURL, apiKey string, cache *redis.Client) *Client {
	c := New(log, apiKey, "judge0-ce.p.rapidapi.com", cache)
	c.baseURL = baseURL
	c.pollInterval = 10 * time.Millisecond
	return c
}

type submission struct {
	Token string `json:"token"`
}

type submissionResult struct {
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	CompileOutput string  `json:"compile_output"`
	Time          string  `json:"time"`
	Memory        float64 `json:"memory"`
}

// Run submits code and polls until the sandbox reaches a terminal
// status, mapping it onto the public result shape.
func (c *Client) Run(ctx context.Context, req Request) (Result, error) {
	if _, ok := languageIDs[req.Language]; !ok {
		return Result{}, ErrUnsupportedLanguage
	}
	if c.apiKey == "" {
		return Result{}, ErrNoAPIKey
	}

	key := cacheKey(req)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			var res Result
			if json.Unmarshal(cached, &res) == nil {
				c.log.Info("execution cache hit", "language", req.Language)
				return res, nil
			}
		}
	}

	token, err := c.submit(ctx, req)
	if err != nil {
		return Result{}, err
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		sr, err := c.fetch(ctx, token)
		if err != nil {
			return Result{}, err
		}
		if sr.Status.ID <= 2 {
			continue // queued or processing
		}

		res := mapResult(sr)
		if req.Input != "" {
			res.Input = req.Input
		}
		if c.cache != nil {
			if b, err := json.Marshal(res); err == nil {
				if err := c.cache.Set(ctx, key, b, cacheTTL).Err(); err != nil {
					c.log.Warn("execution cache store failed", "error", err.Error())
				}
			}
		}
		return res, nil
	}
	return Result{}, ErrTimeout
}

func (c *Client) submit(ctx context.Context, req Request) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"source_code": req.Code,
		"language_id": languageIDs[req.Language],
		"stdin":       req.Input,
		"wait":        false,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.auth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Op: "code submission", Status: http.StatusBadGateway, Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{Op: "code submission", Status: resp.StatusCode, Detail: string(detail)}
	}
	var sub submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", &UpstreamError{Op: "code submission", Status: resp.StatusCode, Detail: err.Error()}
	}
	return sub.Token, nil
}

func (c *Client) fetch(ctx context.Context, token string) (submissionResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/submissions/"+token, nil)
	if err != nil {
		return submissionResult{}, err
	}
	c.auth(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return submissionResult{}, &UpstreamError{Op: "result fetch", Status: http.StatusBadGateway, Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return submissionResult{}, &UpstreamError{Op: "result fetch", Status: resp.StatusCode}
	}
	var sr submissionResult
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return submissionResult{}, &UpstreamError{Op: "result fetch", Status: resp.StatusCode, Detail: err.Error()}
	}
	return sr, nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.apiHost)
}

func mapResult(sr submissionResult) Result {
	var output string
	success := false
	switch sr.Status.ID {
	case 3: // Accepted
		output = orDefault(sr.Stdout, "No output")
		success = true
	case 4:
		output = "Wrong Answer:\n" + orDefault(sr.Stdout, "No output")
	case 5:
		output = "Time Limit Exceeded"
	case 6:
		output = "Compilation Error:\n" + orDefault(sr.CompileOutput, "Unknown error")
	case 7:
		output = "Runtime Error:\n" + orDefault(sr.Stderr, "Segmentation fault")
	case 8:
		output = "Runtime Error: File size limit exceeded"
	case 9:
		output = "Runtime Error: Floating point exception"
	case 10:
		output = "Runtime Error:\n" + orDefault(sr.Stderr, "Program aborted")
	case 11:
		output = "Runtime Error:\n" + orDefault(sr.Stderr, "Non-zero exit code")
	case 12:
		output = "Runtime Error:\n" + orDefault(sr.Stderr, "Unknown runtime error")
	case 13:
		output = "Internal Error: Please try again"
	case 14:
		output = "Exec Format Error"
	default:
		output = "Unknown status: " + sr.Status.Description
	}

	res := Result{Success: success, Output: output, Status: sr.Status.Description}
	if sr.Time != "" {
		res.ExecutionTime = sr.Time + "s"
	}
	if sr.Memory > 0 {
		res.Memory = fmt.Sprintf("%.0fKB", sr.Memory)
	}
	return res
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func cacheKey(req Request) string {
	h := sha256.Sum256([]byte(req.Language + "\x00" + req.Code + "\x00" + req.Input))
	return "judge:run:" + hex.EncodeToString(h[:])
}
