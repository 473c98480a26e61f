package schema

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/txn2/dbms-agent/pkg/capability"
	"github.com/txn2/dbms-agent/pkg/localexec"
)

// columnSampleLimit bounds how many columns per object are requested from
// the bridge in one listing call.
const columnSampleLimit = 50

// RemoteInvoker is the bridge surface the analyzer needs.
type RemoteInvoker interface {
	Probe(ctx context.Context) bool
	ListTools(ctx context.Context, forceRefresh bool) ([]string, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error)
}

// Introspector is the local surface the analyzer needs.
type Introspector interface {
	Objects(ctx context.Context) ([]localexec.Object, error)
	ColumnsByObject(ctx context.Context) (map[string][]string, error)
}

// Analyzer collects catalog metadata. Resolution order: remote bridge
// tools first, local INFORMATION_SCHEMA introspection second.
type Analyzer struct {
	remote RemoteInvoker
	local  Introspector
}

// NewAnalyzer builds an analyzer. Either source may be nil.
func NewAnalyzer(remote RemoteInvoker, local Introspector) *Analyzer {
	return &Analyzer{remote: remote, local: local}
}

// Analyze returns the catalog. Discovery failures degrade to an empty or
// partial catalog rather than erroring: callers render "schema
// unavailable" from emptiness.
func (a *Analyzer) Analyze(ctx context.Context) []Object {
	if a.remote != nil && a.remote.Probe(ctx) {
		if objects := a.analyzeRemote(ctx); len(objects) > 0 {
			return objects
		}
	}
	return a.analyzeLocal(ctx)
}

// remoteObject is the item shape returned by the bridge listing tools.
type remoteObject struct {
	Qualified string   `json:"qualified"`
	Schema    string   `json:"schema"`
	Table     string   `json:"table"`
	View      string   `json:"view"`
	Columns   []string `json:"columns"`
}

func (a *Analyzer) analyzeRemote(ctx context.Context) []Object {
	tools, err := a.remote.ListTools(ctx, false)
	if err != nil {
		slog.Debug("remote catalog discovery skipped", "error", err)
		return nil
	}

	var objects []Object
	if binding, err := capability.Resolve(tools, capability.ListTables); err == nil {
		objects = append(objects, a.fetchObjects(ctx, binding.Name, "table", map[string]any{
			"includeColumns":    true,
			"columnSampleLimit": columnSampleLimit,
		})...)
	}
	if binding, err := capability.Resolve(tools, capability.ListViews); err == nil {
		objects = append(objects, a.fetchObjects(ctx, binding.Name, "view", map[string]any{})...)
	}

	if len(objects) > 0 {
		a.enrichColumns(ctx, tools, objects)
	}
	return objects
}

// fetchObjects invokes one listing tool and converts its items.
func (a *Analyzer) fetchObjects(ctx context.Context, tool, objType string, args map[string]any) []Object {
	raw, err := a.remote.CallTool(ctx, tool, args)
	if err != nil {
		slog.Warn("catalog listing failed", "tool", tool, "error", err)
		return nil
	}

	var objects []Object
	for _, item := range decodeObjectList(raw) {
		if item.Qualified == "" {
			continue
		}
		table := item.Table
		if objType == "view" && item.View != "" {
			table = item.View
		}
		objects = append(objects, Object{
			Name:    item.Qualified,
			Schema:  item.Schema,
			Table:   table,
			Type:    objType,
			Columns: item.Columns,
		})
	}
	return objects
}

// decodeObjectList accepts either a bare item array or { items: [...] }.
func decodeObjectList(raw json.RawMessage) []remoteObject {
	if len(raw) == 0 {
		return nil
	}
	var items []remoteObject
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	var wrapped struct {
		Items []remoteObject `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Items
	}
	slog.Warn("unexpected catalog listing shape", "body_prefix", prefix(raw, 120))
	return nil
}

// enrichColumns fills in empty column lists via the describe capability
// when the bridge advertises one. Enrichment is opportunistic: failures
// leave the object as-is.
func (a *Analyzer) enrichColumns(ctx context.Context, tools []string, objects []Object) {
	needed := false
	for i := range objects {
		if len(objects[i].Columns) == 0 {
			needed = true
			break
		}
	}
	if !needed {
		return
	}

	binding, err := capability.Resolve(tools, capability.DescribeTable)
	if err != nil {
		return
	}

	for i := range objects {
		if len(objects[i].Columns) > 0 {
			continue
		}
		raw, err := a.remote.CallTool(ctx, binding.Name, map[string]any{binding.ArgKey: objects[i].Name})
		if err != nil {
			slog.Debug("describe enrichment failed", "object", objects[i].Name, "error", err)
			continue
		}
		var described struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
		}
		if err := json.Unmarshal(raw, &described); err != nil {
			continue
		}
		for _, c := range described.Columns {
			if c.Name != "" {
				objects[i].Columns = append(objects[i].Columns, c.Name)
			}
		}
	}
}

func (a *Analyzer) analyzeLocal(ctx context.Context) []Object {
	if a.local == nil {
		return nil
	}

	locals, err := a.local.Objects(ctx)
	if err != nil {
		slog.Debug("local introspection failed", "error", err)
		return nil
	}
	columns, err := a.local.ColumnsByObject(ctx)
	if err != nil {
		slog.Debug("local column introspection failed", "error", err)
		columns = nil
	}

	objects := make([]Object, 0, len(locals))
	for _, l := range locals {
		qualified := l.Name
		if l.Schema != "" {
			qualified = l.Schema + "." + l.Name
		}
		objects = append(objects, Object{
			Name:    qualified,
			Schema:  l.Schema,
			Table:   l.Name,
			Type:    l.Type,
			Columns: columns[l.Schema+"."+l.Name],
		})
	}
	return objects
}

func prefix(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n])
}
