package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config points the suite at a running server.
type Config struct {
	BaseURL       string
	SigningKey    string
	Issuer        string
	Administrator string
}

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	cfg    Config
	client *http.Client
	nonce  string

	caller       string
	lastStatus   int
	lastBody     []byte
	lastResponse map[string]any
	campaignID   int64
}

// NewTestContext starts a fresh scenario. Identities named in features are
// suffixed with the nonce so scenarios never share server state.
func NewTestContext(cfg Config, nonce string) *TestContext {
	return &TestContext{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		nonce:  nonce,
	}
}

// Identity maps a feature-level name to the identity used on the wire.
func (tc *TestContext) Identity(name string) string {
	if name == "admin" {
		return tc.cfg.Administrator
	}
	return name + "-" + tc.nonce
}

func (tc *TestContext) SetCaller(name string) {
	tc.caller = name
}

func (tc *TestContext) ClearCaller() {
	tc.caller = ""
}

func (tc *TestContext) CampaignID() int64 {
	return tc.campaignID
}

func (tc *TestContext) SetCampaignID(campaignID int64) {
	tc.campaignID = campaignID
}

func (tc *TestContext) POST(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(payload))
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, tc.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.caller != "" {
		token, err := tc.token(tc.Identity(tc.caller))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastResponse = nil
	if len(tc.lastBody) > 0 {
		var decoded map[string]any
		if json.Unmarshal(tc.lastBody, &decoded) == nil {
			tc.lastResponse = decoded
		}
	}
	return nil
}

func (tc *TestContext) token(subject string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tc.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(tc.cfg.SigningKey))
}

func (tc *TestContext) GetLastStatus() int {
	return tc.lastStatus
}

// GetResponseField resolves a dotted path such as "campaign.status".
func (tc *TestContext) GetResponseField(field string) (any, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	var current any = tc.lastResponse
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return current, nil
}

// GetResponseString renders a field the way feature files spell it.
func (tc *TestContext) GetResponseString(field string) (string, error) {
	v, err := tc.GetResponseField(field)
	if err != nil {
		return "", err
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatInt(int64(val), 10), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return fmt.Sprint(val), nil
	}
}
