package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/roundstore"
	"github.com/MJE43/studio-analyzer/internal/tracker"
)

type testServer struct {
	*httptest.Server
	store *roundstore.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store, err := roundstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tr := tracker.New(analysis.New(), store, logging.Discard())
	if opts.DB == nil {
		opts.DB = store
	}
	opts.Logger = logging.Discard()
	srv := httptest.NewServer(NewServer(tr, opts).Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (ts *testServer) createSession(t *testing.T, token string) uuid.UUID {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/sessions", token, map[string]string{"name": "table 1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	var sess roundstore.Session
	decode(t, resp, &sess)
	return sess.ID
}

func TestHealthAndVersion(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	var h healthResponse
	decode(t, resp, &h)
	if h.Status != "ok" || h.Database != "ok" {
		t.Errorf("unexpected health %+v", h)
	}

	resp = ts.do(t, http.MethodGet, "/version", "", nil)
	var v VersionInfo
	decode(t, resp, &v)
	if v.Version != Version || v.Forecaster != "blend" || v.Policy != "threshold" {
		t.Errorf("unexpected version %+v", v)
	}
	if got := resp.Header.Get("X-Engine-Version"); got != Version {
		t.Errorf("X-Engine-Version = %q", got)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealthReportsDatabaseFailure(t *testing.T) {
	ts := newTestServer(t, Options{DB: failingPinger{}})
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var h healthResponse
	decode(t, resp, &h)
	if h.Status != "degraded" || h.Database != "disk gone" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestAppendRoundFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t, "")
	base := "/api/v1/sessions/" + id.String()

	var last appendRoundResponse
	for _, o := range []string{"red", "a", "side_a", "home"} {
		resp := ts.do(t, http.MethodPost, base+"/rounds", "", map[string]string{"outcome": o})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("append %q: status %d", o, resp.StatusCode)
		}
		decode(t, resp, &last)
	}
	if last.Round.Index != 3 {
		t.Errorf("round index = %d, want 3", last.Round.Index)
	}
	if got := last.Analysis.Suggestion.String(); got != "side_a" {
		t.Errorf("suggestion = %s", got)
	}
	if last.Analysis.Phase != analysis.PhaseSuggest || last.Analysis.ManipulationLevel != 4 {
		t.Errorf("phase/level = %s/%d", last.Analysis.Phase, last.Analysis.ManipulationLevel)
	}

	resp := ts.do(t, http.MethodGet, base+"/analysis", "", nil)
	var ar analysisResponse
	decode(t, resp, &ar)
	if ar.Analysis.Rounds != 4 || ar.Forecaster != "blend" {
		t.Errorf("analysis = %+v", ar)
	}
	if len(ar.Ranked) != 3 || ar.Ranked[0].Probability < ar.Ranked[1].Probability {
		t.Errorf("ranked probabilities not sorted: %+v", ar.Ranked)
	}

	resp = ts.do(t, http.MethodGet, base+"/rounds?limit=2", "", nil)
	var rr roundsResponse
	decode(t, resp, &rr)
	if len(rr.Rounds) != 2 || rr.Rounds[0].Index != 2 || rr.Rounds[1].Index != 3 {
		t.Errorf("recent rounds = %+v", rr.Rounds)
	}

	resp = ts.do(t, http.MethodGet, base, "", nil)
	var sess roundstore.Session
	decode(t, resp, &sess)
	if sess.Rounds != 4 {
		t.Errorf("session rounds = %d", sess.Rounds)
	}
}

func TestAppendRoundFromCards(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t, "")
	resp := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id.String()+"/rounds", "",
		map[string]string{"side_a_card": "4", "side_b_card": "k"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out appendRoundResponse
	decode(t, resp, &out)
	if out.Round.Outcome.String() != "side_b" || string(out.Round.SideB) != "K" {
		t.Errorf("round = %+v", out.Round)
	}
}

func TestAppendRoundValidation(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t, "")
	path := "/api/v1/sessions/" + id.String() + "/rounds"

	tests := []struct {
		name     string
		body     map[string]string
		wantType string
	}{
		{"unknown outcome", map[string]string{"outcome": "green"}, ErrTypeInvalidRound},
		{"unknown card", map[string]string{"outcome": "tie", "side_a_card": "1"}, ErrTypeInvalidRound},
		{"one card only", map[string]string{"side_a_card": "9"}, ErrTypeInvalidRound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, path, "", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status %d", resp.StatusCode)
			}
			var apiErr APIError
			decode(t, resp, &apiErr)
			if apiErr.Type != tt.wantType {
				t.Errorf("type = %q, want %q", apiErr.Type, tt.wantType)
			}
			if resp.Header.Get("X-Error-Category") != string(CategoryValidation) {
				t.Errorf("category header = %q", resp.Header.Get("X-Error-Category"))
			}
		})
	}

	// A rejected round never reaches the history.
	resp := ts.do(t, http.MethodGet, "/api/v1/sessions/"+id.String(), "", nil)
	var sess roundstore.Session
	decode(t, resp, &sess)
	if sess.Rounds != 0 {
		t.Errorf("rounds = %d after rejected input", sess.Rounds)
	}
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := ts.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid/analysis", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status %d", resp.StatusCode)
	}

	missing := "/api/v1/sessions/" + uuid.New().String()
	for _, path := range []string{missing, missing + "/analysis", missing + "/rounds", missing + "/export.csv"} {
		resp := ts.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
			continue
		}
		var apiErr APIError
		decode(t, resp, &apiErr)
		if apiErr.Type != ErrTypeSessionNotFound || apiErr.RequestID == "" {
			t.Errorf("GET %s: error %+v", path, apiErr)
		}
	}
}

func TestClearAndDelete(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t, "")
	base := "/api/v1/sessions/" + id.String()
	for _, o := range []string{"a", "b", "tie"} {
		ts.do(t, http.MethodPost, base+"/rounds", "", map[string]string{"outcome": o})
	}

	resp := ts.do(t, http.MethodDelete, base+"/rounds", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: status %d", resp.StatusCode)
	}
	var res analysis.Result
	decode(t, resp, &res)
	if res.Rounds != 0 || res.Reason != analysis.ReasonInsufficient || res.Cooldown != 0 {
		t.Errorf("after clear: %+v", res)
	}

	resp = ts.do(t, http.MethodDelete, base, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodGet, base+"/analysis", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("analysis after delete: status %d", resp.StatusCode)
	}
}

func TestTokenRequiredOnMutations(t *testing.T) {
	ts := newTestServer(t, Options{Token: "s3cret"})

	resp := ts.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodPost, "/api/v1/sessions", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", resp.StatusCode)
	}

	id := ts.createSession(t, "s3cret")
	base := "/api/v1/sessions/" + id.String()

	resp = ts.do(t, http.MethodPost, base+"/rounds", "", map[string]string{"outcome": "a"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("append without token: status %d", resp.StatusCode)
	}
	resp = ts.do(t, http.MethodPost, base+"/rounds", "s3cret", map[string]string{"outcome": "a"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("append with token: status %d", resp.StatusCode)
	}

	// Reads stay open.
	resp = ts.do(t, http.MethodGet, base+"/analysis", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("read: status %d", resp.StatusCode)
	}
}

func TestExportAndReport(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.createSession(t, "")
	base := "/api/v1/sessions/" + id.String()
	ts.do(t, http.MethodPost, base+"/rounds", "", map[string]string{"outcome": "b", "side_b_card": "Q"})
	ts.do(t, http.MethodPost, base+"/rounds", "", map[string]string{"outcome": "tie"})

	resp := ts.do(t, http.MethodGet, base+"/export.csv", "", nil)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv has %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "blue") || !strings.Contains(lines[1], "Q") {
		t.Errorf("first row = %q", lines[1])
	}

	resp = ts.do(t, http.MethodGet, base+"/report.txt", "", nil)
	buf.Reset()
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "suggestion:") {
		t.Errorf("report missing suggestion:\n%s", buf.String())
	}

	resp = ts.do(t, http.MethodGet, base+"/metrics", "", nil)
	var m analysis.Metrics
	decode(t, resp, &m)
	if m.Rounds != 2 {
		t.Errorf("metrics rounds = %d", m.Rounds)
	}
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.createSession(t, "")
	ts.createSession(t, "")

	resp := ts.do(t, http.MethodGet, "/api/v1/sessions?limit=1", "", nil)
	var out sessionsResponse
	decode(t, resp, &out)
	if len(out.Sessions) != 1 || out.Limit != 1 {
		t.Errorf("got %d sessions, limit %d", len(out.Sessions), out.Limit)
	}
}

func TestIngestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{IngestRate: 0.001, IngestBurst: 2})
	id := ts.createSession(t, "")
	path := "/api/v1/sessions/" + id.String() + "/rounds"

	for i := 0; i < 2; i++ {
		if resp := ts.do(t, http.MethodPost, path, "", map[string]string{"outcome": "a"}); resp.StatusCode != http.StatusCreated {
			t.Fatalf("append %d: status %d", i, resp.StatusCode)
		}
	}
	resp := ts.do(t, http.MethodPost, path, "", map[string]string{"outcome": "a"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Reads are not limited.
	if resp := ts.do(t, http.MethodGet, path, "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("read: status %d", resp.StatusCode)
	}
}
