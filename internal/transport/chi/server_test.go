package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/index"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
)

type mockAnswerer struct {
	answerFn func(ctx context.Context, question string) string
}

func (m *mockAnswerer) Answer(ctx context.Context, question string) string {
	return m.answerFn(ctx, question)
}

type mockCorpus struct {
	ingestFn  func(ctx context.Context) error
	rebuildFn func(ctx context.Context) error
	staleFn   func(ctx context.Context) (bool, error)
}

func (m *mockCorpus) Ingest(ctx context.Context) error {
	if m.ingestFn != nil {
		return m.ingestFn(ctx)
	}
	return nil
}

func (m *mockCorpus) Rebuild(ctx context.Context) error {
	if m.rebuildFn != nil {
		return m.rebuildFn(ctx)
	}
	return nil
}

func (m *mockCorpus) Stale(ctx context.Context) (bool, error) {
	if m.staleFn != nil {
		return m.staleFn(ctx)
	}
	return false, nil
}

type mockManifests struct {
	manifestFn func(ctx context.Context) (index.Manifest, error)
}

func (m *mockManifests) Collection() string { return "corpus" }

func (m *mockManifests) Manifest(ctx context.Context) (index.Manifest, error) {
	if m.manifestFn != nil {
		return m.manifestFn(ctx)
	}
	return index.Manifest{}, domain.ErrNotBuilt
}

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

type failPinger struct{}

func (failPinger) Ping(_ context.Context) error { return errors.New("down") }

func newTestRouter(t *testing.T, s *Server) http.Handler {
	t.Helper()
	r := chirouter.NewRouter()
	s.Routes(r)
	return r
}

func newTestServer(answer answerer, corpus corpusManager, manifests manifestReader, db healthuc.DBPinger) *Server {
	return NewServer(answer, corpus, manifests, healthuc.New(db, nil, nil), zap.NewNop())
}

func TestAnswerEndpoint(t *testing.T) {
	ans := &mockAnswerer{
		answerFn: func(_ context.Context, question string) string {
			if question != "when do owls hunt?" {
				t.Errorf("question = %q", question)
			}
			return "At night."
		},
	}

	router := newTestRouter(t, newTestServer(ans, &mockCorpus{}, &mockManifests{}, okPinger{}))

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{"question":"when do owls hunt?"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "At night." {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestAnswerEndpoint_BadBody(t *testing.T) {
	ans := &mockAnswerer{
		answerFn: func(_ context.Context, _ string) string {
			t.Fatal("pipeline must not run for malformed JSON")
			return ""
		},
	}

	router := newTestRouter(t, newTestServer(ans, &mockCorpus{}, &mockManifests{}, okPinger{}))

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{not json`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAnswerEndpoint_EmptyQuestionStill200(t *testing.T) {
	ans := &mockAnswerer{
		answerFn: func(_ context.Context, _ string) string {
			return "Please provide a question."
		},
	}

	router := newTestRouter(t, newTestServer(ans, &mockCorpus{}, &mockManifests{}, okPinger{}))

	req := httptest.NewRequest("POST", "/v1/answer", strings.NewReader(`{"question":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even for blank questions", rr.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	rebuilt := false
	corpus := &mockCorpus{
		rebuildFn: func(_ context.Context) error {
			rebuilt = true
			return nil
		},
	}
	manifests := &mockManifests{
		manifestFn: func(_ context.Context) (index.Manifest, error) {
			return index.Manifest{Dimensions: 4, Model: "m", RecordCount: 12, BuiltAt: 1700000000}, nil
		},
	}

	router := newTestRouter(t, newTestServer(nil, corpus, manifests, okPinger{}))

	req := httptest.NewRequest("POST", "/v1/rebuild", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body)
	}
	if !rebuilt {
		t.Error("rebuild was not invoked")
	}

	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Built || resp.RecordCount != 12 {
		t.Errorf("status = %+v", resp)
	}
}

func TestRebuildEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ingestion failure", fmt.Errorf("load: %w", domain.ErrIngestion), http.StatusUnprocessableEntity, codeIngestionFailed},
		{"provider failure", fmt.Errorf("embed: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway, codeProviderError},
		{"corruption", fmt.Errorf("dims: %w", domain.ErrIndexCorruption), http.StatusConflict, codeIndexCorruption},
		{"configuration", fmt.Errorf("overlap: %w", domain.ErrConfiguration), http.StatusBadRequest, codeBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corpus := &mockCorpus{
				rebuildFn: func(_ context.Context) error { return tt.err },
			}
			router := newTestRouter(t, newTestServer(nil, corpus, &mockManifests{}, okPinger{}))

			req := httptest.NewRequest("POST", "/v1/rebuild", http.NoBody)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			var errResp struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", errResp.Code, tt.wantCode)
			}
			if strings.Contains(errResp.Message, "boom") {
				t.Error("internal error details leaked to the client")
			}
		})
	}
}

func TestStatusEndpoint_NotBuilt(t *testing.T) {
	router := newTestRouter(t, newTestServer(nil, &mockCorpus{}, &mockManifests{}, okPinger{}))

	req := httptest.NewRequest("GET", "/v1/status", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Built {
		t.Error("Built = true for an unbuilt collection")
	}
	if resp.Collection != "corpus" {
		t.Errorf("collection = %q", resp.Collection)
	}
}

func TestStatusEndpoint_BuiltAndStale(t *testing.T) {
	corpus := &mockCorpus{
		staleFn: func(_ context.Context) (bool, error) { return true, nil },
	}
	manifests := &mockManifests{
		manifestFn: func(_ context.Context) (index.Manifest, error) {
			return index.Manifest{Dimensions: 4, Model: "m", RecordCount: 3}, nil
		},
	}

	router := newTestRouter(t, newTestServer(nil, corpus, manifests, okPinger{}))

	req := httptest.NewRequest("GET", "/v1/status", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Built {
		t.Error("Built = false")
	}
	if resp.Stale == nil || !*resp.Stale {
		t.Errorf("Stale = %v, want true", resp.Stale)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, newTestServer(nil, &mockCorpus{}, &mockManifests{}, okPinger{}))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHealthEndpoint_Unhealthy(t *testing.T) {
	router := newTestRouter(t, newTestServer(nil, &mockCorpus{}, &mockManifests{}, failPinger{}))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}
