package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext carries per-scenario state against a running server.
type TestContext struct {
	BaseURL    string
	HTTPClient *http.Client

	signingKey string
	issuer     string
	audience   string

	tokens      map[string]string
	actorToken  string
	voucherID   string
	boundResult map[string]interface{}

	LastResponse     *http.Response
	LastResponseBody []byte
}

// NewTestContext reads BASE_URL and the token settings from the environment.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    envOr("BASE_URL", "http://localhost:8080"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		signingKey: envOr("E2E_SIGNING_KEY", "dev-secret-key-change-in-production"),
		issuer:     envOr("E2E_ISSUER", "cdigit"),
		audience:   envOr("E2E_AUDIENCE", "cdigit-branch"),
		tokens:     make(map[string]string),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Reset clears state between scenarios.
func (tc *TestContext) Reset() {
	tc.tokens = make(map[string]string)
	tc.actorToken = ""
	tc.voucherID = ""
	tc.boundResult = nil
	tc.LastResponse = nil
	tc.LastResponseBody = nil
}

// MintToken signs an actor token the server accepts.
func (tc *TestContext) MintToken(actorID, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"actor_id": actorID,
		"role":     role,
		"sub":      actorID,
		"iss":      tc.issuer,
		"aud":      []string{tc.audience},
		"iat":      now.Unix(),
		"exp":      now.Add(15 * time.Minute).Unix(),
		"jti":      uuid.NewString(),
	})
	return token.SignedString([]byte(tc.signingKey))
}

// SetActor records a token under actorID and makes it current.
func (tc *TestContext) SetActor(actorID, role string) error {
	token, err := tc.MintToken(actorID, role)
	if err != nil {
		return err
	}
	tc.tokens[actorID] = token
	tc.actorToken = token
	return nil
}

// UseActor switches to a previously registered actor.
func (tc *TestContext) UseActor(actorID string) error {
	token, ok := tc.tokens[actorID]
	if !ok {
		return fmt.Errorf("actor %q has not been registered", actorID)
	}
	tc.actorToken = token
	return nil
}

func (tc *TestContext) ClearActor() { tc.actorToken = "" }

func (tc *TestContext) GetVoucherID() string { return tc.voucherID }

func (tc *TestContext) SetVoucherID(voucherID string) { tc.voucherID = voucherID }

func (tc *TestContext) GetBoundResult() map[string]interface{} { return tc.boundResult }

func (tc *TestContext) SetBoundResult(v map[string]interface{}) { tc.boundResult = v }

// POST sends a JSON body as the current actor.
func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET sends a request as the current actor.
func (tc *TestContext) GET(path string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.actorToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.actorToken)
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	tc.LastResponse = resp
	tc.LastResponseBody = body
	return nil
}

func (tc *TestContext) GetLastStatusCode() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte { return tc.LastResponseBody }

// GetResponseField reads a dotted path out of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	var current interface{} = data
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q is not an object at %q", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return current, nil
}
