package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"adventdrop/internal/config"
	"adventdrop/internal/db"
	"adventdrop/internal/domain"
	"adventdrop/internal/engine"
	"adventdrop/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func testConfig() *config.Config {
	cfg := config.Default("advent-2026")
	cfg.Season.StartDate = "2026-12-01"
	cfg.Season.Days = 3
	cfg.NGO.Wallet = "NGOwallet111"
	return cfg
}

func newTestServer(t *testing.T, now time.Time) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := testConfig()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwtlib.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func seasonSpecs() []domain.GiftSpec {
	return []domain.GiftSpec{
		{
			Day:  1,
			Type: domain.TypeProportionalHolders,
			Hint: "A rising tide",
			Params: domain.GiftParams{
				Proportional: &domain.ProportionalParams{
					MinBalance:        domain.AmountFromInt64(100),
					AllocationPercent: 50,
				},
			},
		},
		{
			Day:     2,
			Type:    domain.TypeNGODonation,
			Hint:    "For a good cause",
			SubHint: "Everything goes somewhere warm",
			Params: domain.GiftParams{
				Donation: &domain.DonationParams{Wallet: "NGOwallet111", Percent: 100},
			},
		},
		{
			Day:  3,
			Type: domain.TypeDeterministicRandom,
			Hint: "Roll the dice",
			Params: domain.GiftParams{
				Random: &domain.RandomParams{
					MinBalance:        domain.AmountFromInt64(1),
					AllocationPercent: 40,
					WinnerCount:       2,
					Split:             "equal",
				},
			},
		},
	}
}

func commitTestSeason(t *testing.T, srv *testServer) CommitmentResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/season/commit",
		CommitSeasonRequest{Gifts: seasonSpecs()},
		map[string]string{"Authorization": adminToken(t)})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("commit season status %d: %s", res.StatusCode, string(data))
	}
	var commitment CommitmentResponse
	if err := json.Unmarshal(data, &commitment); err != nil {
		t.Fatalf("unmarshal commitment: %v", err)
	}
	return commitment
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Now())
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestCommitSeasonRequiresToken(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Now())
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/season/commit",
		CommitSeasonRequest{Gifts: seasonSpecs()}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected code unauthorized, got %q", envelope.Error.Code)
	}
}

func TestCommitSeasonAndReadCommitment(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Now())
	defer cleanup()

	commitment := commitTestSeason(t, srv)
	if commitment.Root == "" {
		t.Fatal("expected a non-empty root")
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/commitment", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get commitment status %d: %s", res.StatusCode, string(data))
	}
	var got CommitmentResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal commitment: %v", err)
	}
	if got.Root != commitment.Root || got.Season != "advent-2026" {
		t.Fatalf("commitment mismatch: %+v vs %+v", got, commitment)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/season/commit",
		CommitSeasonRequest{Gifts: seasonSpecs()},
		map[string]string{"Authorization": adminToken(t)})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on recommit, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDisclosurePhases(t *testing.T) {
	// Day 2 of the season: day 1 fully revealed, day 2 hint only, day 3
	// hidden.
	now := time.Date(2026, 12, 2, 12, 0, 0, 0, time.UTC)
	srv, cleanup := newTestServer(t, now)
	defer cleanup()
	commitment := commitTestSeason(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("day 1 status %d: %s", res.StatusCode, string(data))
	}
	var full DisclosureResponse
	if err := json.Unmarshal(data, &full); err != nil {
		t.Fatalf("unmarshal disclosure: %v", err)
	}
	if full.Disclosure.Gift == nil || full.Disclosure.Salt == "" || full.Disclosure.Root != commitment.Root {
		t.Fatalf("expected full disclosure for day 1, got %+v", full.Disclosure)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("day 2 status %d: %s", res.StatusCode, string(data))
	}
	var hint DisclosureResponse
	if err := json.Unmarshal(data, &hint); err != nil {
		t.Fatalf("unmarshal disclosure: %v", err)
	}
	if hint.Disclosure.Gift != nil || hint.Disclosure.Salt != "" {
		t.Fatalf("expected hint-only disclosure for day 2, got %+v", hint.Disclosure)
	}
	if hint.Disclosure.Hint != "For a good cause" {
		t.Fatalf("expected hint, got %q", hint.Disclosure.Hint)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/3", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for hidden day 3, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "hidden" {
		t.Fatalf("expected code hidden, got %q", envelope.Error.Code)
	}
}

func TestVerifyDisclosure(t *testing.T) {
	now := time.Date(2026, 12, 10, 12, 0, 0, 0, time.UTC)
	srv, cleanup := newTestServer(t, now)
	defer cleanup()
	commitTestSeason(t, srv)

	_, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/1", nil, nil)
	var dr DisclosureResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		t.Fatalf("unmarshal disclosure: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/verify",
		VerifyRequest{Disclosure: dr.Disclosure}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", res.StatusCode, string(data))
	}
	var vr VerificationResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if !vr.Verification.Valid {
		t.Fatalf("expected valid verification, got %+v", vr.Verification)
	}

	tampered := dr.Disclosure
	gift := *tampered.Gift
	gift.Hint = "something else"
	tampered.Gift = &gift
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/verify",
		VerifyRequest{Disclosure: tampered}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify tampered status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &vr); err != nil {
		t.Fatalf("unmarshal verification: %v", err)
	}
	if vr.Verification.Valid || vr.Verification.LeafMatches {
		t.Fatalf("expected invalid verification for tampered gift, got %+v", vr.Verification)
	}

	incomplete := dr.Disclosure
	incomplete.Gift = nil
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/verify",
		VerifyRequest{Disclosure: incomplete}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete disclosure, got %d: %s", res.StatusCode, string(data))
	}
}

func TestExecuteDay(t *testing.T) {
	now := time.Date(2026, 12, 1, 22, 0, 0, 0, time.UTC)
	srv, cleanup := newTestServer(t, now)
	defer cleanup()
	commitTestSeason(t, srv)

	body := ExecuteDayRequest{
		Blockhash:  "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZ",
		PoolAmount: domain.AmountFromInt64(1_000_000),
		Holders: []domain.HolderSnapshot{
			{Wallet: "walletA", Balance: domain.AmountFromInt64(600)},
			{Wallet: "walletB", Balance: domain.AmountFromInt64(400)},
			{Wallet: "walletC", Balance: domain.AmountFromInt64(50)},
		},
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/days/1/execute", body,
		map[string]string{"Authorization": adminToken(t)})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("execute status %d: %s", res.StatusCode, string(data))
	}
	var er ExecutionResponse
	if err := json.Unmarshal(data, &er); err != nil {
		t.Fatalf("unmarshal execution: %v", err)
	}
	if len(er.Execution.Result.Winners) != 2 {
		t.Fatalf("expected 2 winners above min balance, got %d", len(er.Execution.Result.Winners))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/days/1/execute", body,
		map[string]string{"Authorization": adminToken(t)})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on re-execute, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/1/execution", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get execution status %d: %s", res.StatusCode, string(data))
	}
	var got ExecutionResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal execution: %v", err)
	}
	if got.Execution.ID != er.Execution.ID {
		t.Fatalf("execution id mismatch: %s vs %s", got.Execution.ID, er.Execution.ID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/days/2/execution", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unexecuted day, got %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Now())
	defer cleanup()
	commitTestSeason(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?type=season.committed", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var er EventsResponse
	if err := json.Unmarshal(data, &er); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(er.Events) != 1 {
		t.Fatalf("expected 1 season.committed event, got %d", len(er.Events))
	}
	if er.Events[0].ActorID != "tester" {
		t.Fatalf("expected actor tester, got %q", er.Events[0].ActorID)
	}
}
