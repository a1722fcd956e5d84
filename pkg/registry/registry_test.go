package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/types"
)

func TestSelectPrefersHealthyPreferred(t *testing.T) {
	r := registry.New()
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1", Status: types.GatewayOnline})
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-2", Host: "http://gw2", Status: types.GatewayOnline})

	g, err := r.Select("gw-1")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", g.GatewayID)
}

func TestSelectFallsBackWhenPreferredUnhealthy(t *testing.T) {
	r := registry.New()
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1", Status: types.GatewayOffline})
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-2", Host: "http://gw2", Status: types.GatewayHealthy})

	g, err := r.Select("gw-1")
	require.NoError(t, err)
	assert.Equal(t, "gw-2", g.GatewayID)
}

func TestSelectReturnsMostRecentHeartbeat(t *testing.T) {
	r := registry.New()
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1", Status: types.GatewayOnline})
	time.Sleep(2 * time.Millisecond)
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-2", Host: "http://gw2", Status: types.GatewayOnline})

	g, err := r.Select("")
	require.NoError(t, err)
	assert.Equal(t, "gw-2", g.GatewayID)
}

func TestSelectNoneQualify(t *testing.T) {
	r := registry.New()
	r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1", Status: types.GatewayOffline})

	_, err := r.Select("")
	assert.ErrorIs(t, err, registry.ErrNoGateway)
}

func TestRegisterGatewayPreservesRegisteredAt(t *testing.T) {
	r := registry.New()
	first := r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1"})
	time.Sleep(2 * time.Millisecond)
	second := r.RegisterGateway(&types.Gateway{GatewayID: "gw-1", Host: "http://gw1-updated"})

	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, "http://gw1-updated", second.Host)
}

func TestWorkerHealthySchedulerAlwaysHealthy(t *testing.T) {
	r := registry.New()
	assert.True(t, r.WorkerHealthy(registry.SchedulerWorkerID))
	assert.False(t, r.WorkerHealthy("unknown-worker"))

	r.RegisterWorker(&types.Worker{WorkerID: "w1", Status: types.WorkerBusy})
	assert.True(t, r.WorkerHealthy("w1"))
}
