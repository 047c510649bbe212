// Package e2e drives a running kindergarten server through its HTTP API with
// godog scenarios. Set E2E_BASE_URL to the server and E2E_ADMIN_EMAIL and
// E2E_ADMIN_PASSWORD to its bootstrap administrator.
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

// TestContext carries HTTP state between the steps of one scenario.
type TestContext struct {
	baseURL string
	client  *http.Client
	runID   string

	adminEmail    string
	adminPassword string

	tokens   map[string]string
	clientIP string

	lastStatus int
	lastHeader http.Header
	lastBody   []byte
}

// NewTestContext returns a context for one scenario. runID is substituted for
// {run} in step arguments so scenarios do not collide on a shared server.
func NewTestContext(baseURL, adminEmail, adminPassword, runID string) *TestContext {
	return &TestContext{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: 10 * time.Second},
		runID:         runID,
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		tokens:        make(map[string]string),
	}
}

// Expand replaces {run} with the scenario's run id.
func (tc *TestContext) Expand(s string) string {
	return strings.ReplaceAll(s, "{run}", tc.runID)
}

func (tc *TestContext) AdminCredentials() (string, string) {
	return tc.adminEmail, tc.adminPassword
}

// SetClientIP sends X-Forwarded-For on later requests.
func (tc *TestContext) SetClientIP(ip string) {
	tc.clientIP = ip
}

func (tc *TestContext) SetToken(email, token string) {
	tc.tokens[email] = token
}

func (tc *TestContext) Token(email string) string {
	return tc.tokens[email]
}

// Do sends a JSON request authenticated as actor, or anonymously when actor
// has no token.
func (tc *TestContext) Do(method, path, actor string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := tc.tokens[actor]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) LastHeader(name string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(name)
}

func (tc *TestContext) LastBody() []byte {
	return tc.lastBody
}

// ResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return v, nil
}
