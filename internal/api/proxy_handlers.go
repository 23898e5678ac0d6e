package api

import (
	"errors"
	"net/http"

	"grimm.is/tollgate/internal/config"
	"grimm.is/tollgate/internal/proxy"
)

// ProxyStatus reports the service lifecycle.
type ProxyStatus struct {
	Running bool         `json:"running"`
	State   string       `json:"state"`
	TCPAddr string       `json:"tcp_addr,omitempty"`
	UDPAddr string       `json:"udp_addr,omitempty"`
	Config  proxy.Config `json:"config"`
}

func (s *Server) proxyStatus() ProxyStatus {
	svc := s.control.Service()
	st := ProxyStatus{
		Running: svc.Running(),
		State:   svc.State().String(),
		Config:  svc.Config(),
	}
	if a := svc.TCPAddr(); a != nil {
		st.TCPAddr = a.String()
	}
	if a := svc.UDPAddr(); a != nil {
		st.UDPAddr = a.String()
	}
	return st
}

func (s *Server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.proxyStatus())
}

func (s *Server) handleProxyStart(w http.ResponseWriter, r *http.Request) {
	err := s.control.StartProxy().Err(r.Context())
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, s.proxyStatus())
	case errors.Is(err, proxy.ErrAlreadyRunning):
		WriteError(w, http.StatusConflict, "proxy already running")
	default:
		WriteError(w, http.StatusInternalServerError, "failed to start proxy", err.Error())
	}
}

func (s *Server) handleProxyStop(w http.ResponseWriter, r *http.Request) {
	if err := s.control.StopProxy().Err(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to stop proxy", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.proxyStatus())
}

// handleProxyConfig replaces the configuration used by the next start.
func (s *Server) handleProxyConfig(w http.ResponseWriter, r *http.Request) {
	var cfg proxy.Config
	if err := decodeJSON(r, &cfg); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid config", err.Error())
		return
	}
	if err := config.ValidateProxy(cfg); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid config", err.Error())
		return
	}
	if err := s.control.UpdateConfig(cfg).Err(r.Context()); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to update config", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}
