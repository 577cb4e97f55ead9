package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func readyStatus(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	return w.Code, body
}

func pingOK(context.Context) error { return nil }
func pingDown(context.Context) error { return errors.New("connection refused") }

func TestReady(t *testing.T) {
	code, body := readyStatus(t, NewHealthHandler("1.0.0").Require("kv", PingFunc(pingOK)).Optional("postgres", PingFunc(pingOK)))
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthy = %d %v", code, body)
	}

	code, body = readyStatus(t, NewHealthHandler("1.0.0").Require("kv", PingFunc(pingOK)).Optional("postgres", PingFunc(pingDown)))
	if code != http.StatusOK {
		t.Errorf("optional dependency down = %d", code)
	}
	checks := body["checks"].(map[string]any)
	if checks["postgres"].(map[string]any)["status"] != "degraded" {
		t.Errorf("postgres check = %v", checks["postgres"])
	}

	code, body = readyStatus(t, NewHealthHandler("1.0.0").Require("kv", PingFunc(pingDown)))
	if code != http.StatusServiceUnavailable || body["status"] != "not_ready" {
		t.Errorf("required dependency down = %d %v", code, body)
	}
}

func TestOptional_NilIgnored(t *testing.T) {
	h := NewHealthHandler("").Optional("postgres", nil)
	if len(h.optional) != 0 {
		t.Error("nil pinger should be skipped")
	}
}
