package gatewayclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/types"
)

func TestStatusSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(types.GatewayStatusResponse{AgentConnected: true})
	}))
	defer srv.Close()

	c := gatewayclient.New(nil)
	resp, err := c.Status(context.Background(), "gw-1", srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.AgentConnected)
}

func TestActionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/action", r.URL.Path)
		var req types.GatewayActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "reboot", req.Action)
		json.NewEncoder(w).Encode(types.GatewayActionResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := gatewayclient.New(nil)
	resp, err := c.Action(context.Background(), "gw-1", srv.URL, types.GatewayActionRequest{
		Action: "reboot", IdempotencyKey: "tok-1",
	})
	require.NoError(t, err)
	ok, msg := gatewayclient.ClassifyResult(resp)
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestActionNonZeroReturnCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := 1
		json.NewEncoder(w).Encode(types.GatewayActionResponse{
			Status: "ok",
			Result: &types.GatewayActionResult{ReturnCode: &rc},
		})
	}))
	defer srv.Close()

	c := gatewayclient.New(nil)
	resp, err := c.Action(context.Background(), "gw-1", srv.URL, types.GatewayActionRequest{Action: "x"})
	require.NoError(t, err)
	ok, msg := gatewayclient.ClassifyResult(resp)
	assert.False(t, ok)
	assert.Contains(t, msg, "1")
}

func TestStatusHTTPErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := gatewayclient.New(nil)
	_, err := c.Status(context.Background(), "gw-1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := gatewayclient.New(nil)
	for i := 0; i < 3; i++ {
		_, err := c.Status(context.Background(), "gw-flaky", srv.URL)
		require.Error(t, err)
	}

	_, err := c.Status(context.Background(), "gw-flaky", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
