package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/oracle"
	"github.com/muon-protocol/factgpt-examples/internal/resolution"
	"github.com/muon-protocol/factgpt-examples/internal/server/handler"
	"github.com/muon-protocol/factgpt-examples/internal/service"
	"github.com/muon-protocol/factgpt-examples/internal/store/memory"
)

const (
	apiKey  = "test-key"
	program = "muon-program"
)

type testServer struct {
	handler http.Handler
	now     time.Time
	pubKey  domain.GroupPubKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key, err := crypto.GenerateGroupKey()
	require.NoError(t, err)
	attestor := oracle.NewAttestor(key)

	ts := &testServer{now: time.Unix(1_700_000_000, 0), pubKey: attestor.GroupPubKey()}
	protocol := resolution.New(memory.NewQuestionStore(), oracle.NewMuonVerifier(program, logger), logger,
		resolution.WithClock(func() time.Time { return ts.now }),
		resolution.WithLocks(memory.NewLockManager(), time.Second),
	)
	svc := service.NewQuestionService(protocol, nil, attestor, logger)

	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler(map[string]handler.HealthCheckFunc{
			"store": func(context.Context) error { return nil },
		}, logger),
		Questions: handler.NewQuestionHandler(svc, logger),
		Attest:    handler.NewAttestHandler(svc, logger),
	}, nil, logger)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", apiKey)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (ts *testServer) initialize(t *testing.T, id string) {
	t.Helper()
	rec, _ := ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"instance_id":    id,
		"owner":          "owner-1",
		"prompt":         "Did X happen?",
		"deadline":       ts.now.Unix() + 3600,
		"app_id":         "42",
		"group_pub_key":  ts.pubKey,
		"oracle_program": program,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) attest(t *testing.T, id string, outcome bool) oracle.Attestation {
	t.Helper()
	rec, _ := ts.do(t, http.MethodPost, "/api/dev/attest", map[string]any{
		"instance_id": id,
		"outcome":     outcome,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a oracle.Attestation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

func commitBody(outcome bool, a oracle.Attestation) map[string]any {
	return map[string]any{
		"outcome":    outcome,
		"request_id": a.RequestID,
		"signature":  a.Signature,
	}
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/questions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitializeAndRead(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")

	rec, body := ts.do(t, http.MethodGet, "/api/questions/q-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Did X happen?", body["prompt"])
	assert.Equal(t, "unresolved", body["outcome"])
	assert.Equal(t, "open", body["state"])

	rec, body = ts.do(t, http.MethodGet, "/api/questions/q-1/binding", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appInfo := body["app_info"].(map[string]any)
	assert.Equal(t, "42", appInfo["app_id"])
	assert.Equal(t, program, body["oracle_program"])

	rec, body = ts.do(t, http.MethodGet, "/api/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["questions"], 1)
}

func TestInitializeErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")

	rec, body := ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"instance_id": "q-1", "owner": "o", "prompt": "p", "deadline": ts.now.Unix() + 10,
		"app_id": "1", "group_pub_key": ts.pubKey, "oracle_program": program,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already initialized", body["error"])

	rec, _ = ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"instance_id": "q-2", "owner": "o", "prompt": "p", "deadline": ts.now.Unix() - 1,
		"app_id": "1", "group_pub_key": ts.pubKey, "oracle_program": program,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/questions", map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitializeGeneratesInstanceID(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"owner": "o", "prompt": "p", "deadline": ts.now.Unix() + 10,
		"app_id": "1", "group_pub_key": ts.pubKey, "oracle_program": program,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := body["question"].(map[string]any)
	assert.NotEmpty(t, q["instance_id"])
}

func TestGetUnknownQuestion(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/questions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])
}

func TestMessagePreview(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")

	rec, body := ts.do(t, http.MethodGet, "/api/questions/q-1/message?outcome=true&request_id=0x0102", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	want := crypto.MessageHash(big.NewInt(42), []byte{1, 2}, true)
	assert.Equal(t, want.String(), body["message_hash"])
	assert.Equal(t, "0x0102", body["request_id"])

	rec, _ = ts.do(t, http.MethodGet, "/api/questions/q-1/message?outcome=maybe&request_id=0x01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")
	ts.now = ts.now.Add(10 * time.Second)

	// Signature over the other outcome is rejected.
	wrong := ts.attest(t, "q-1", false)
	rec, body := ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", commitBody(true, wrong))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "signature rejected", body["error"])

	a := ts.attest(t, "q-1", true)
	rec, body = ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", commitBody(true, a))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "true", body["outcome"])
	assert.Equal(t, "resolved", body["state"])

	rec, body = ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", commitBody(true, a))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already resolved", body["error"])
}

func TestCommitAfterDeadline(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")
	a := ts.attest(t, "q-1", true)

	ts.now = ts.now.Add(3601 * time.Second)
	rec, body := ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", commitBody(true, a))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "deadline expired", body["error"])

	rec, body = ts.do(t, http.MethodGet, "/api/questions/q-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "expired", body["state"])
	assert.Equal(t, "unresolved", body["outcome"])
}

func TestCommitUnauthorizedEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/questions", map[string]any{
		"instance_id": "q-1", "owner": "o", "prompt": "p", "deadline": ts.now.Unix() + 10,
		"app_id": "42", "group_pub_key": ts.pubKey, "oracle_program": "impostor",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	a := ts.attest(t, "q-1", true)
	rec, body := ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", commitBody(true, a))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized oracle endpoint", body["error"])
}

func TestCommitValidatesBody(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t, "q-1")

	rec, _ := ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", map[string]any{"request_id": "0x01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/questions/q-1/outcome", map[string]any{"outcome": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttestorKeyRoute(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/dev/attestor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ts.pubKey.X.String(), body["x"])
}

func TestHealthDegraded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewHealthHandler(map[string]handler.HealthCheckFunc{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
