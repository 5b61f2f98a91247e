package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/database"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/editor"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/elements"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/geometry"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

const (
	testSigningSecret = "server-test-secret"
	testIssuer        = "paperless"
	testCookieName    = "paperless_session"
	testShareOrigin   = "https://paperless.example"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	handler   http.Handler
	documents *documents.Service
	users     *users.Service
	editor    *editor.Registry
	realtime  *RealtimeDispatcher
	issuer    *auth.TokenIssuer
	logs      *observer.ObservedLogs
}

func newTestServer(t *testing.T, configure func(*Dependencies)) *testServer {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	clock := func() time.Time { return testNow }

	handles, err := database.Open(context.Background(), database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "server.db"),
	}, logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(handles.Close)
	store, err := handles.DocumentStore()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	documentService, err := documents.NewService(documents.ServiceConfig{
		Store:    store,
		Clock:    clock,
		Notifier: realtime,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create documents service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: handles.DB, Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	registry := editor.NewRegistry(editor.RegistryConfig{Clock: clock, Logger: logger})

	deps := Dependencies{
		Validator:   validator,
		Principals:  userService,
		Documents:   documentService,
		Editor:      registry,
		ShareOrigin: testShareOrigin,
		Realtime:    realtime,
		Clock:       clock,
		Logger:      logger,
	}
	if configure != nil {
		configure(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{
		handler:   handler,
		documents: documentService,
		users:     userService,
		editor:    registry,
		realtime:  realtime,
		issuer:    issuer,
		logs:      logs,
	}
}

func (s *testServer) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, _, err := s.issuer.Issue(auth.TokenRequest{UserID: userID, Email: userID + "@example.com", Roles: roles})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// do sends body as JSON (or raw bytes when it is already a []byte) with a bearer token.
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorReason(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload errorPayload
	decodeBody(t, recorder, &payload)
	return payload.Error
}

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() string {
	s.next++
	return fmt.Sprintf("el_%d", s.next)
}

func sampleDocument(kind documents.Kind, visibility documents.Visibility) documents.Document {
	bounds := geometry.DefaultBounds()
	ids := &sequenceIDs{}
	doc := documents.Serialize([]elements.Element{
		elements.NewBackground(bounds),
		elements.New(elements.KindText, geometry.Point{X: 40, Y: 40}, bounds, ids),
		elements.New(elements.KindRectangle, geometry.Point{X: 120, Y: 200}, bounds, ids),
	}, documents.EventData{Title: "Garden party", Date: "2026-06-01", Time: "18:00", Location: "Back yard"}, visibility)
	doc.Kind = kind
	return doc
}
