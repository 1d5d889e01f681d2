package adventdropsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Adventdrop HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Commitment is the published season root.
type Commitment struct {
	Season      string `json:"season"`
	Root        string `json:"root"`
	CommittedAt string `json:"committed_at"`
}

// GiftSpec is a round's payout rule as the API returns it. Params stays
// generic here; verification hashes the document as a whole.
type GiftSpec struct {
	Day                int            `json:"day"`
	Type               string         `json:"type"`
	Hint               string         `json:"hint"`
	SubHint            string         `json:"sub_hint,omitempty"`
	Params             map[string]any `json:"params"`
	DistributionSource string         `json:"distribution_source,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

// Disclosure is a round's revealed data; fields beyond day and hints are
// empty until the round is fully revealed.
type Disclosure struct {
	Day     int       `json:"day"`
	Hint    string    `json:"hint,omitempty"`
	SubHint string    `json:"sub_hint,omitempty"`
	Gift    *GiftSpec `json:"gift,omitempty"`
	Salt    string    `json:"salt,omitempty"`
	Leaf    string    `json:"leaf,omitempty"`
	Proof   []string  `json:"proof,omitempty"`
	Root    string    `json:"root,omitempty"`
}

// Verification is the per-check verdict for a disclosure.
type Verification struct {
	Valid       bool `json:"valid"`
	RootMatches bool `json:"root_matches"`
	LeafMatches bool `json:"leaf_matches"`
	ProofValid  bool `json:"proof_valid"`
}

// Winner is one payout in an execution result.
type Winner struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// TokenAirdrop is one hourly sub-lottery payout.
type TokenAirdrop struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount"`
	Hour   int    `json:"hour"`
}

// Execution is a persisted day evaluation.
type Execution struct {
	ID         string `json:"id"`
	Day        int    `json:"day"`
	Blockhash  string `json:"blockhash"`
	PoolAmount string `json:"pool_amount"`
	Result     struct {
		Winners          []Winner       `json:"winners"`
		TotalDistributed string         `json:"total_distributed"`
		Remainder        string         `json:"remainder"`
		TokenAirdrops    []TokenAirdrop `json:"token_airdrops,omitempty"`
	} `json:"result"`
	ExecutedAt string `json:"executed_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Commitment fetches the published season commitment.
func (c *Client) Commitment(ctx context.Context) (Commitment, error) {
	var resp Commitment
	err := c.do(ctx, http.MethodGet, "v0/commitment", nil, &resp)
	return resp, err
}

// Disclosure fetches a day's disclosure per its reveal phase.
func (c *Client) Disclosure(ctx context.Context, day int) (Disclosure, error) {
	var resp struct {
		Disclosure Disclosure `json:"disclosure"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/days/%d", day), nil, &resp)
	return resp.Disclosure, err
}

// Verify replays a disclosure's proof against the published root.
func (c *Client) Verify(ctx context.Context, d Disclosure) (Verification, error) {
	var resp struct {
		Verification Verification `json:"verification"`
	}
	err := c.do(ctx, http.MethodPost, "v0/verify", map[string]any{"disclosure": d}, &resp)
	return resp.Verification, err
}

// Execution fetches a day's persisted execution result.
func (c *Client) Execution(ctx context.Context, day int) (Execution, error) {
	var resp struct {
		Execution Execution `json:"execution"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/days/%d/execution", day), nil, &resp)
	return resp.Execution, err
}

// Events fetches up to n recent audit events.
func (c *Client) Events(ctx context.Context, n int) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/events?n=%d", n), nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
