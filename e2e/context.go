// Package e2e drives a running onboarding server through godog feature files.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext holds the HTTP client and the last response seen by a scenario.
type TestContext struct {
	BaseURL       string
	ReviewerToken string

	client      *http.Client
	clientIP    string
	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
	values      map[string]string
}

// NewTestContext targets the server at baseURL.
func NewTestContext(baseURL, reviewerToken string) *TestContext {
	return &TestContext{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		ReviewerToken: reviewerToken,
		client:        &http.Client{Timeout: 10 * time.Second},
		values:        map[string]string{},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.clientIP = fmt.Sprintf("198.51.100.%d", time.Now().UnixNano()%250+1)
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeaders = nil
	tc.values = map[string]string{}
}

// SetClientIP sets the X-Forwarded-For value sent with every request.
func (tc *TestContext) SetClientIP(ip string) {
	tc.clientIP = ip
}

func (tc *TestContext) POST(path string, body any, headers map[string]string) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	return tc.do(http.MethodPost, path, reader, headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

// ReviewerHeaders authenticates as the reviewer configured for the run.
func (tc *TestContext) ReviewerHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + tc.ReviewerToken}
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeaders.Get(name)
}

// GetResponseField walks a dotted path such as "data.application.id" through
// the last JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: not an object", path)
		}
		if doc, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", path, tc.lastBody)
		}
	}
	return doc, nil
}

// Remember stores a value for later steps in the same scenario.
func (tc *TestContext) Remember(key, value string) {
	tc.values[key] = value
}

func (tc *TestContext) Recall(key string) (string, error) {
	v, ok := tc.values[key]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", key)
	}
	return v, nil
}
