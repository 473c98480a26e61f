package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/txn2/dbms-agent/pkg/backend"
	"github.com/txn2/dbms-agent/pkg/bridge"
	"github.com/txn2/dbms-agent/pkg/localexec"
	"github.com/txn2/dbms-agent/pkg/nl2sql"
	"github.com/txn2/dbms-agent/pkg/result"
	"github.com/txn2/dbms-agent/pkg/schema"
)

const catalogSampleColumns = 8

// Response is the complete answer for a single question.
type Response struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Intent   string   `json:"intent"`
	Tables   []string `json:"tables,omitempty"`
	SQL      string   `json:"sql,omitempty"`
	Executed bool     `json:"executed"`
	Rows     *int     `json:"rows,omitempty"`
	Markdown string   `json:"markdown"`
	Mode     string   `json:"mode"`
	Error    string   `json:"error,omitempty"`
}

// Agent routes natural-language questions through table selection, SQL
// drafting, and backend execution.
type Agent struct {
	cfg      *Config
	selector *backend.Selector
	analyzer *schema.Analyzer
	remote   *bridge.Client
	local    *localexec.Executor
}

// Option overrides a constructed component, primarily for tests.
type Option func(*Agent)

// WithSelector replaces the backend selector.
func WithSelector(s *backend.Selector) Option {
	return func(a *Agent) { a.selector = s }
}

// WithAnalyzer replaces the schema analyzer.
func WithAnalyzer(an *schema.Analyzer) Option {
	return func(a *Agent) { a.analyzer = an }
}

// New wires the bridge client, local executor, backend selector, and
// schema analyzer from config. Components that fail to initialize are
// logged and skipped; the selector decides what remains usable.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg}

	if cfg.Bridge.BaseURL != "" {
		client, err := bridge.NewClient(cfg.Bridge)
		if err != nil {
			if cfg.RemotePreferred() {
				return nil, fmt.Errorf("initializing bridge client: %w", err)
			}
			slog.Warn("bridge client unavailable", "error", err)
		} else {
			a.remote = client
		}
	}

	local, err := localexec.New(ctx, cfg.Local)
	if err != nil {
		slog.Warn("local executor unavailable", "error", err)
	} else {
		a.local = local
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.selector == nil {
		var remote backend.RemoteInvoker
		if a.remote != nil {
			remote = a.remote
		}
		var localExec backend.LocalExecutor
		if a.local != nil {
			localExec = a.local
		}
		a.selector = backend.NewSelector(ctx, remote, localExec, cfg.RemotePreferred())
	}
	if a.analyzer == nil {
		var remote schema.RemoteInvoker
		if a.remote != nil {
			remote = a.remote
		}
		var local schema.Introspector
		if a.local != nil {
			local = a.local
		}
		a.analyzer = schema.NewAnalyzer(remote, local)
	}
	return a, nil
}

// Mode reports the resolved execution mode.
func (a *Agent) Mode() backend.Mode { return a.selector.Mode() }

// Local returns the local executor, or nil when no connection was made.
func (a *Agent) Local() *localexec.Executor { return a.local }

// Catalog returns the discovered database objects.
func (a *Agent) Catalog(ctx context.Context) []schema.Object {
	return a.analyzer.Analyze(ctx)
}

// Close releases the local database connection if one was opened.
func (a *Agent) Close() error {
	if a.local != nil {
		return a.local.Close()
	}
	return nil
}

// Answer processes a question end to end. It never panics across this
// boundary; internal failures surface in the Error field.
func (a *Agent) Answer(ctx context.Context, question string) (resp Response) {
	resp = Response{
		ID:       uuid.NewString(),
		Question: question,
		Mode:     string(result.BackendNone),
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("question processing panicked", "request_id", resp.ID, "panic", r)
			resp.Executed = false
			resp.Error = fmt.Sprintf("internal error: %v", r)
			resp.Markdown = "An internal error occurred while processing the question."
		}
	}()

	log := slog.With("request_id", resp.ID)
	intent := nl2sql.ClassifyIntent(question)
	resp.Intent = string(intent)
	log.Debug("classified question", "intent", resp.Intent)

	catalog := a.analyzer.Analyze(ctx)

	if intent == nl2sql.IntentMetadata {
		resp.Markdown = renderCatalogSummary(catalog)
		return resp
	}

	objects := make([]nl2sql.CatalogObject, 0, len(catalog))
	for _, obj := range catalog {
		objects = append(objects, nl2sql.CatalogObject{Name: obj.Name, Columns: obj.Columns})
	}
	resp.Tables = nl2sql.SelectTables(question, objects)
	resp.SQL = nl2sql.GenerateSQL(question, resp.Tables)

	if len(resp.Tables) == 0 || resp.SQL == nl2sql.PlaceholderSQL {
		resp.Markdown = "No tables selected (schema unavailable or empty)."
		return resp
	}
	if !nl2sql.ApplyQualityFilters(resp.SQL) {
		resp.Markdown = "Generated SQL was rejected by quality filters."
		return resp
	}

	log.Debug("executing query", "sql", resp.SQL, "tables", resp.Tables)
	res := a.selector.ExecuteQuery(ctx, resp.SQL)
	resp.Executed = res.Succeeded
	resp.Rows = res.Rows
	resp.Markdown = res.Rendered
	resp.Mode = string(res.Backend)
	resp.Error = res.RawError
	return resp
}

// renderCatalogSummary builds a markdown overview of the discovered
// objects without executing any SQL.
func renderCatalogSummary(catalog []schema.Object) string {
	if len(catalog) == 0 {
		return "Schema is empty or unavailable."
	}
	rows := make([][]string, 0, len(catalog))
	for _, obj := range catalog {
		cols := obj.Columns
		truncated := false
		if len(cols) > catalogSampleColumns {
			cols = cols[:catalogSampleColumns]
			truncated = true
		}
		sample := strings.Join(cols, ", ")
		if truncated {
			sample += ", …"
		}
		rows = append(rows, []string{obj.Name, obj.Type, sample})
	}
	table := result.RenderObjectTable([]string{"Object", "Type", "Columns"}, rows)
	return "### Database Catalog\n\n" + table
}
