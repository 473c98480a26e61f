// Package health provides readiness state tracking and HTTP health check
// handlers for the agent service.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks the readiness state of the agent and the execution mode
// it resolved at startup. It is safe for concurrent use.
type Checker struct {
	state atomic.Int32
	mode  atomic.Value // string
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	c := &Checker{}
	c.mode.Store("unavailable")
	return c
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// SetMode records the resolved execution mode for reporting.
func (c *Checker) SetMode(mode string) {
	c.mode.Store(mode)
}

// Mode returns the recorded execution mode.
func (c *Checker) Mode() string {
	return c.mode.Load().(string)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining. The body carries the execution mode
// so operators can tell a remote-preferred agent from a local-only one.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: c.State(), Mode: c.Mode()}
		if c.IsReady() {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
