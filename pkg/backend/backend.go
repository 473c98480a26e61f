// Package backend chooses and sequences execution backends for a request.
//
// The selector resolves its mode once at construction from configuration
// and backend availability, then applies the fallback policy per request:
// remote failures fall back to local at most once, exclusive modes attempt
// a single backend, and the Unavailable mode short-circuits every request
// without touching the network or the database.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/txn2/dbms-agent/pkg/capability"
	"github.com/txn2/dbms-agent/pkg/localexec"
	"github.com/txn2/dbms-agent/pkg/result"
)

// ErrNoBackend indicates neither execution path is usable.
var ErrNoBackend = errors.New("no execution backend available")

// Mode is the selector's resolved operating mode.
type Mode int

// Selector modes.
const (
	Unavailable Mode = iota
	LocalOnly
	RemoteOnly
	RemotePreferred
)

func (m Mode) String() string {
	switch m {
	case LocalOnly:
		return "local-only"
	case RemoteOnly:
		return "remote-only"
	case RemotePreferred:
		return "remote-preferred"
	default:
		return "unavailable"
	}
}

// RemoteInvoker is the remote bridge surface the selector needs. The
// bridge client implements it.
type RemoteInvoker interface {
	Probe(ctx context.Context) bool
	ListTools(ctx context.Context, forceRefresh bool) ([]string, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
}

// LocalExecutor is the local database surface the selector needs.
type LocalExecutor interface {
	Execute(ctx context.Context, query string) (*localexec.ResultSet, error)
}

// Selector owns the backend decision for the life of the process.
type Selector struct {
	mode   Mode
	remote RemoteInvoker
	local  LocalExecutor
}

// NewSelector resolves the operating mode from availability and the
// prefer-remote flag. Either backend may be nil; the remote backend counts
// as available only when its liveness probe passes.
func NewSelector(ctx context.Context, remote RemoteInvoker, local LocalExecutor, preferRemote bool) *Selector {
	remoteOK := remote != nil && remote.Probe(ctx)
	localOK := local != nil

	var mode Mode
	switch {
	case remoteOK && localOK:
		if preferRemote {
			mode = RemotePreferred
		} else {
			mode = LocalOnly
		}
	case remoteOK:
		mode = RemoteOnly
	case localOK:
		mode = LocalOnly
	default:
		mode = Unavailable
	}

	slog.Debug("backend selector resolved",
		"mode", mode.String(),
		"remote_available", remoteOK,
		"local_available", localOK,
	)

	return &Selector{mode: mode, remote: remote, local: local}
}

// Mode returns the resolved operating mode.
func (s *Selector) Mode() Mode { return s.mode }

// Remote returns the remote invoker, or nil when not configured.
func (s *Selector) Remote() RemoteInvoker { return s.remote }

// ExecuteQuery runs SQL through the selected backend path and returns the
// canonical result. The selector adds no retries of its own; fallback from
// remote to local happens at most once per request.
func (s *Selector) ExecuteQuery(ctx context.Context, sql string) result.Result {
	switch s.mode {
	case Unavailable:
		return result.NoBackend("No execution backend available (local and remote both unavailable).")

	case LocalOnly:
		return s.runLocal(ctx, sql)

	case RemoteOnly:
		res, err := s.runRemote(ctx, sql)
		if err != nil {
			slog.Warn("remote execution failed with no local fallback", "error", err)
			return result.Failure(result.BackendRemote, "", err)
		}
		return res

	case RemotePreferred:
		res, err := s.runRemote(ctx, sql)
		if err == nil {
			return res
		}
		slog.Warn("remote execution failed, falling back to local", "error", err)
		return s.runLocal(ctx, sql)
	}

	return result.NoBackend("")
}

// runRemote resolves the read capability and invokes it. A missing
// capability is a rejection, not a failure: it returns a non-executed
// result with err == nil so the caller does not fall back.
func (s *Selector) runRemote(ctx context.Context, sql string) (result.Result, error) {
	tools, err := s.remote.ListTools(ctx, false)
	if err != nil {
		return result.Result{}, err
	}

	binding, err := capability.Resolve(tools, capability.ReadQuery)
	if err != nil {
		if errors.Is(err, capability.ErrNoCapability) {
			return result.Failure(result.BackendRemote,
				"Remote bridge advertises no suitable read capability (expected '"+
					capability.Preferred(capability.ReadQuery)+"').", nil), nil
		}
		return result.Result{}, err
	}

	raw, err := s.remote.CallTool(ctx, binding.Name, map[string]any{binding.ArgKey: sql})
	if err != nil {
		return result.Result{}, err
	}
	return result.NormalizeRemote(raw), nil
}

// runLocal executes against the local database. Local failures (malformed
// SQL, broken connection) are final for the request.
func (s *Selector) runLocal(ctx context.Context, sql string) result.Result {
	if s.local == nil {
		return result.NoBackend("Local backend not available in this process.")
	}
	rs, err := s.local.Execute(ctx, sql)
	if err != nil {
		return result.Failure(result.BackendLocal, "Local execution failed: "+err.Error(), err)
	}
	return result.NormalizeLocal(rs.Columns, rs.Rows)
}
