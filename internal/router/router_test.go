package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blues/fundchain/internal/handler"
	"github.com/blues/fundchain/internal/logger"
	"github.com/blues/fundchain/internal/logic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
)

type fakeHealth struct{}

func (fakeHealth) GetHealthStatus(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"client_status": "connected"}
}

type fakeMonitor struct{}

func (fakeMonitor) GetStatus() map[string]interface{} {
	return map[string]interface{}{"is_running": true}
}

type noEvents struct{}

func (noEvents) GetEvents(ctx context.Context, campaignId int64, eventName string, page, pageSize int) ([]logic.EventRecord, int64, error) {
	return nil, 0, nil
}

func testEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return Setup(Deps{
		Sessions:  handler.NewSessionHandler(nil),
		Campaigns: handler.NewCampaignHandler(nil, nil, nil),
		Actions:   handler.NewActionHandler(nil),
		Events:    handler.NewEventHandler(noEvents{}),
		Chain:     fakeHealth{},
		Monitor:   fakeMonitor{},
	})
}

func TestHealth(t *testing.T) {
	r := testEngine()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	chain, _ := body["chain"].(map[string]interface{})
	if body["status"] != "ok" || chain["client_status"] != "connected" || body["monitor"] == nil {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated X-Request-ID")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	r := testEngine()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testEngine()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/campaigns", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRecoveryLogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger.SetDefaultLogger(logger.NewWithWriter(logger.INFO, zapcore.AddSync(&buf)))
	defer logger.SetDefaultLogger(logger.NewWithWriter(logger.INFO, zapcore.AddSync(&bytes.Buffer{})))

	r := testEngine()
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		if json.Unmarshal(line, &entry) != nil {
			continue
		}
		if entry["request_id"] == "req-42" && bytes.Contains(line, []byte("kaboom")) {
			found = true
		}
	}
	if !found {
		t.Errorf("panic log without request id: %s", buf.String())
	}
}
