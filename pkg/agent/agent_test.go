package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/dbms-agent/pkg/backend"
	"github.com/txn2/dbms-agent/pkg/localexec"
	"github.com/txn2/dbms-agent/pkg/schema"
)

type fakeRemote struct {
	healthy bool
	tools   []string
	payload json.RawMessage
	callErr error
	calls   []string
}

func (f *fakeRemote) Probe(context.Context) bool { return f.healthy }

func (f *fakeRemote) ListTools(context.Context, bool) ([]string, error) {
	return f.tools, nil
}

func (f *fakeRemote) CallTool(_ context.Context, name string, _ map[string]any) (json.RawMessage, error) {
	f.calls = append(f.calls, name)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.payload, nil
}

type fakeLocal struct {
	set   *localexec.ResultSet
	err   error
	calls int
}

func (f *fakeLocal) Execute(context.Context, string) (*localexec.ResultSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

type fakeIntrospector struct {
	objects []localexec.Object
	columns map[string][]string
}

func (f *fakeIntrospector) Objects(context.Context) ([]localexec.Object, error) {
	return f.objects, nil
}

func (f *fakeIntrospector) ColumnsByObject(context.Context) (map[string][]string, error) {
	return f.columns, nil
}

// newTestAgent wires an agent from fakes without touching the network or
// a database.
func newTestAgent(t *testing.T, remote *fakeRemote, local *fakeLocal, intro *fakeIntrospector, preferRemote bool) *Agent {
	t.Helper()

	var remoteInv backend.RemoteInvoker
	var remoteCat schema.RemoteInvoker
	if remote != nil {
		remoteInv = remote
		remoteCat = remote
	}
	var localExec backend.LocalExecutor
	if local != nil {
		localExec = local
	}
	var introspector schema.Introspector
	if intro != nil {
		introspector = intro
	}

	t.Setenv("DATABASE_URL", "")
	cfg := &Config{PreferRemote: &preferRemote}
	if preferRemote {
		cfg.Bridge.BaseURL = "http://bridge.test"
	}
	a, err := New(context.Background(), cfg,
		WithSelector(backend.NewSelector(context.Background(), remoteInv, localExec, preferRemote)),
		WithAnalyzer(schema.NewAnalyzer(remoteCat, introspector)),
	)
	require.NoError(t, err)
	return a
}

func localCatalog() *fakeIntrospector {
	return &fakeIntrospector{
		objects: []localexec.Object{
			{Schema: "public", Name: "users", Type: "table"},
			{Schema: "public", Name: "orders", Type: "table"},
		},
		columns: map[string][]string{
			"public.users":  {"id", "email", "created_at"},
			"public.orders": {"id", "user_id", "total"},
		},
	}
}

func TestAnswerLocalQuery(t *testing.T) {
	local := &fakeLocal{set: &localexec.ResultSet{
		Columns: []string{"id", "email"},
		Rows:    [][]any{{int64(1), "a@example.com"}},
	}}

	a := newTestAgent(t, nil, local, localCatalog(), false)
	resp := a.Answer(context.Background(), "show me the users")

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "query", resp.Intent)
	assert.Equal(t, []string{"public.users"}, resp.Tables)
	assert.Equal(t, "SELECT * FROM public.users LIMIT 10", resp.SQL)
	assert.True(t, resp.Executed)
	require.NotNil(t, resp.Rows)
	assert.Equal(t, 1, *resp.Rows)
	assert.Equal(t, "local", resp.Mode)
	assert.Contains(t, resp.Markdown, "| id | email |")
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1, local.calls)
}

func TestAnswerRemoteQuery(t *testing.T) {
	remote := &fakeRemote{
		healthy: true,
		tools:   []string{"read_data"},
		payload: json.RawMessage(`{"success":true,"data":[{"id":1}]}`),
	}

	a := newTestAgent(t, remote, nil, localCatalog(), true)
	resp := a.Answer(context.Background(), "how many orders are there")

	assert.Equal(t, "query", resp.Intent)
	assert.True(t, resp.Executed)
	assert.Equal(t, "remote", resp.Mode)
	assert.Contains(t, resp.Markdown, "| id |")
	assert.Contains(t, remote.calls, "read_data")
}

func TestAnswerMetadataIntent(t *testing.T) {
	local := &fakeLocal{}
	a := newTestAgent(t, nil, local, localCatalog(), false)

	resp := a.Answer(context.Background(), "what tables exist in this database")

	assert.Equal(t, "metadata", resp.Intent)
	assert.False(t, resp.Executed)
	assert.Equal(t, "none", resp.Mode)
	assert.Contains(t, resp.Markdown, "### Database Catalog")
	assert.Contains(t, resp.Markdown, "public.users")
	assert.Contains(t, resp.Markdown, "public.orders")
	assert.Empty(t, resp.SQL)
	assert.Zero(t, local.calls, "metadata questions must not execute SQL")
}

func TestAnswerMetadataEmptySchema(t *testing.T) {
	a := newTestAgent(t, nil, &fakeLocal{}, nil, false)

	resp := a.Answer(context.Background(), "list tables")

	assert.Equal(t, "Schema is empty or unavailable.", resp.Markdown)
	assert.False(t, resp.Executed)
}

func TestAnswerNoTablesSelected(t *testing.T) {
	local := &fakeLocal{}
	a := newTestAgent(t, nil, local, nil, false)

	resp := a.Answer(context.Background(), "count everything")

	assert.Empty(t, resp.Tables)
	assert.False(t, resp.Executed)
	assert.Equal(t, "No tables selected (schema unavailable or empty).", resp.Markdown)
	assert.Zero(t, local.calls)
}

func TestAnswerNoBackend(t *testing.T) {
	a := newTestAgent(t, nil, nil, localCatalog(), false)

	resp := a.Answer(context.Background(), "show me the users")

	assert.False(t, resp.Executed)
	assert.Equal(t, "none", resp.Mode)
	assert.Contains(t, resp.Markdown, "No execution backend available")
}

func TestAnswerLocalFailureSurfaces(t *testing.T) {
	local := &fakeLocal{err: errors.New("relation does not exist")}
	a := newTestAgent(t, nil, local, localCatalog(), false)

	resp := a.Answer(context.Background(), "show me the users")

	assert.False(t, resp.Executed)
	assert.Equal(t, "local", resp.Mode)
	assert.Contains(t, resp.Markdown, "Local execution failed")
	assert.Equal(t, "relation does not exist", resp.Error)
}

func TestAnswerRemoteFallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{
		healthy: true,
		tools:   []string{"read_data"},
		callErr: errors.New("bridge timeout"),
	}
	local := &fakeLocal{set: &localexec.ResultSet{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(7)}},
	}}

	a := newTestAgent(t, remote, local, localCatalog(), true)
	resp := a.Answer(context.Background(), "show me the users")

	assert.True(t, resp.Executed)
	assert.Equal(t, "local", resp.Mode)
	assert.Equal(t, 1, local.calls)
}

func TestAnswerSanitizesPanic(t *testing.T) {
	a := newTestAgent(t, nil, &fakeLocal{}, localCatalog(), false)
	a.analyzer = nil // force a nil dereference inside Answer

	resp := a.Answer(context.Background(), "show me the users")

	assert.False(t, resp.Executed)
	assert.Contains(t, resp.Error, "internal error")
	assert.Equal(t, "An internal error occurred while processing the question.", resp.Markdown)
}

func TestAnswerUniqueRequestIDs(t *testing.T) {
	a := newTestAgent(t, nil, &fakeLocal{}, localCatalog(), false)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		resp := a.Answer(context.Background(), fmt.Sprintf("show users batch %d", i))
		assert.False(t, seen[resp.ID])
		seen[resp.ID] = true
	}
}

func TestRenderCatalogSummaryTruncatesColumns(t *testing.T) {
	cols := make([]string, 12)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%02d", i)
	}
	out := renderCatalogSummary([]schema.Object{
		{Name: "public.wide", Type: "table", Columns: cols},
	})

	assert.Contains(t, out, "c07")
	assert.NotContains(t, out, "c08")
	assert.Contains(t, out, "…")
	assert.Equal(t, 1, strings.Count(out, "public.wide"))
}

func TestAgentMode(t *testing.T) {
	a := newTestAgent(t, nil, &fakeLocal{}, nil, false)
	assert.Equal(t, backend.LocalOnly, a.Mode())
}
