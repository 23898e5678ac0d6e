package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tollgate/internal/proxy"
)

func TestProxy_StartStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/proxy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ProxyStatus](t, w).Running)

	w = env.do(t, http.MethodPost, "/api/proxy/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[ProxyStatus](t, w)
	assert.True(t, st.Running)
	assert.Equal(t, "running", st.State)
	assert.NotEmpty(t, st.TCPAddr)
	assert.Empty(t, st.UDPAddr)

	w = env.do(t, http.MethodPost, "/api/proxy/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/proxy/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ProxyStatus](t, w).Running)

	// Stopping a stopped proxy is fine.
	w = env.do(t, http.MethodPost, "/api/proxy/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProxy_UpdateConfig(t *testing.T) {
	env := newTestEnv(t)

	next := proxy.Config{
		ListenHost: "127.0.0.1",
		ListenPort: 9500,
		TargetHost: "10.1.1.1",
		TargetPort: 8443,
		EnableTCP:  true,
		EnableUDP:  true,
	}
	w := env.do(t, http.MethodPut, "/api/proxy/config", next)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, next, env.svc.Config())

	w = env.do(t, http.MethodGet, "/api/proxy", nil)
	assert.Equal(t, next, decode[ProxyStatus](t, w).Config)
}

func TestProxy_UpdateConfigRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	before := env.svc.Config()

	tests := []struct {
		name string
		cfg  proxy.Config
	}{
		{"missing target host", proxy.Config{ListenHost: "0.0.0.0", ListenPort: 9000, TargetPort: 80, EnableTCP: true}},
		{"port out of range", proxy.Config{ListenHost: "0.0.0.0", ListenPort: 70000, TargetHost: "x", TargetPort: 80, EnableTCP: true}},
		{"no transport", proxy.Config{ListenHost: "0.0.0.0", ListenPort: 9000, TargetHost: "x", TargetPort: 80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/proxy/config", tt.cfg)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, before, env.svc.Config())
}
