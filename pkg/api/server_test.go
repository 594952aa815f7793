// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/exchange/pkg/config"
	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	eng := engine.Build(config.Default(), rnd.NewSource(1), trace.NopSink{}, log.NoOp())
	return NewServer(eng, log.NoOp(), true)
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), `"status":"ok"`)
}

func TestDecisionEndpoint(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	w := postJSON(s.Handler(), "/v1/decision", `{
		"device_id": "device_001",
		"app_id": "app_001",
		"platform": "ANDROID",
		"size": {"w": 320, "h": 50},
		"latency_ms": 50
	}`)
	require.Equal(http.StatusOK, w.Code)

	var res engine.Result
	require.NoError(json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(res.RequestID)
	require.Contains([]engine.Status{engine.StatusAccepted, engine.StatusRejected}, res.Status)
	require.NotEmpty(res.Reason)
}

func TestDecisionEndpointValidation(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	// Missing device id.
	w := postJSON(s.Handler(), "/v1/decision", `{"app_id": "app_001"}`)
	require.Equal(http.StatusBadRequest, w.Code)

	// Unparseable body.
	w = postJSON(s.Handler(), "/v1/decision", `{not json`)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestPostbackEndpoint(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	w := postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50}`)
	require.Equal(http.StatusAccepted, w.Code)

	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50, "weight": 0.2}`)
	require.Equal(http.StatusAccepted, w.Code)

	// Bucket 0 is a legal conversion value, not a missing field.
	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 0}`)
	require.Equal(http.StatusAccepted, w.Code)

	// Out of the coarse value space.
	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 70}`)
	require.Equal(http.StatusBadRequest, w.Code)

	w = postJSON(s.Handler(), "/v1/skan/postback", `{}`)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestPostbackEndpointRejectsBadWeight(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	w := postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50, "weight": -5}`)
	require.Equal(http.StatusBadRequest, w.Code)
	require.Contains(w.Body.String(), "weight")

	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50, "weight": 0}`)
	require.Equal(http.StatusBadRequest, w.Code)

	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50, "weight": 1.5}`)
	require.Equal(http.StatusBadRequest, w.Code)

	w = postJSON(s.Handler(), "/v1/skan/postback", `{"conversion_value": 50, "weight": 1}`)
	require.Equal(http.StatusAccepted, w.Code)
}

func TestOpenRTBEndpoint(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	w := postJSON(s.Handler(), "/openrtb2/auction", `{
		"id": "br-1",
		"imp": [{"id": "imp-1", "banner": {"w": 320, "h": 50}}],
		"app": {"id": "app_001"},
		"device": {"ifa": "ifa-1", "os": "Android"}
	}`)
	require.Equal(http.StatusOK, w.Code)

	var resp struct {
		ID  string `json:"id"`
		Cur string `json:"cur"`
	}
	require.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal("br-1", resp.ID)
	require.Equal("USD", resp.Cur)

	// A request without impressions cannot be decided.
	w = postJSON(s.Handler(), "/openrtb2/auction", `{"id": "br-2", "device": {"ifa": "ifa-1"}}`)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestOpenRTBEndpointRejectsGarbage(t *testing.T) {
	require := require.New(t)
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/openrtb2/auction", bytes.NewReader([]byte{0xff, 0xfe}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(http.StatusBadRequest, w.Code)
}
