package result

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRemote_TabularSuccess(t *testing.T) {
	raw := json.RawMessage(`{"success":true,"data":[{"a":1,"b":2},{"a":3,"b":4}]}`)
	r := NormalizeRemote(raw)

	require.True(t, r.Succeeded)
	assert.Equal(t, BackendRemote, r.Backend)
	require.NotNil(t, r.Rows)
	assert.Equal(t, 2, *r.Rows)

	lines := strings.Split(strings.TrimSpace(r.Rendered), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[0], "| a | b |")
	// Header + separator + two data rows.
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], "1")
	assert.Contains(t, lines[2], "2")
	assert.Contains(t, lines[3], "3")
	assert.Contains(t, lines[3], "4")
}

func TestNormalizeRemote_HeaderOrderFollowsPayload(t *testing.T) {
	// Keys must render in their payload order, not sorted.
	raw := json.RawMessage(`{"success":true,"data":[{"zeta":1,"alpha":2,"mid":3}]}`)
	r := NormalizeRemote(raw)

	lines := strings.Split(strings.TrimSpace(r.Rendered), "\n")
	assert.Contains(t, lines[0], "| zeta | alpha | mid |")
}

func TestNormalizeRemote_EmptyRowList(t *testing.T) {
	raw := json.RawMessage(`{"success":true,"data":[]}`)
	r := NormalizeRemote(raw)

	require.True(t, r.Succeeded)
	assert.Equal(t, msgNoRows, r.Rendered)
	require.NotNil(t, r.Rows, "zero rows is a known zero, not unknown")
	assert.Equal(t, 0, *r.Rows)
}

func TestNormalizeRemote_EmptyRowListPrefersServerMessage(t *testing.T) {
	raw := json.RawMessage(`{"success":true,"data":[],"message":"nothing matched"}`)
	r := NormalizeRemote(raw)
	assert.Equal(t, "nothing matched", r.Rendered)
}

func TestNormalizeRemote_CapsRenderedRowsNotCount(t *testing.T) {
	rows := make([]string, 0, 22)
	for i := range 22 {
		rows = append(rows, fmt.Sprintf(`{"n":%d}`, i))
	}
	raw := json.RawMessage(`{"success":true,"data":[` + strings.Join(rows, ",") + `]}`)

	r := NormalizeRemote(raw)
	require.NotNil(t, r.Rows)
	assert.Equal(t, 22, *r.Rows, "count reflects all rows")

	lines := strings.Split(strings.TrimSpace(r.Rendered), "\n")
	assert.Len(t, lines, 2+remoteRowCap, "rendering is capped")
}

func TestNormalizeRemote_AlternateTextFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"message wins", `{"message":"msg","text":"txt","markdown":"md"}`, "msg"},
		{"text before markdown", `{"text":"txt","markdown":"md"}`, "txt"},
		{"markdown last", `{"markdown":"md"}`, "md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NormalizeRemote(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, r.Rendered)
			assert.True(t, r.Succeeded)
		})
	}
}

func TestNormalizeRemote_LegacyRowCounts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{"row_count", `{"message":"m","row_count":5}`, intPtr(5)},
		{"rows", `{"message":"m","rows":7}`, intPtr(7)},
		{"recordCount", `{"message":"m","recordCount":9}`, intPtr(9)},
		{"row_count wins over rows", `{"message":"m","row_count":5,"rows":7}`, intPtr(5)},
		{"absent means unknown", `{"message":"m"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NormalizeRemote(json.RawMessage(tt.raw))
			if tt.want == nil {
				assert.Nil(t, r.Rows)
				return
			}
			require.NotNil(t, r.Rows)
			assert.Equal(t, *tt.want, *r.Rows)
		})
	}
}

func TestNormalizeRemote_GenericFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare string", `"42 rows affected"`, "42 rows affected"},
		{"object without known fields", `{"weird": {"shape": 1}}`, `{"weird":{"shape":1}}`},
		{"number", `12`, "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NormalizeRemote(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, r.Rendered)
			assert.True(t, r.Succeeded)
			assert.Nil(t, r.Rows)
		})
	}
}

func TestNormalizeRemote_EmptyPayload(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("  ")} {
		r := NormalizeRemote(raw)
		assert.True(t, r.Succeeded)
		assert.NotEmpty(t, r.Rendered, "succeeded results always render something")
		assert.Nil(t, r.Rows)
	}
}

func TestNormalizeRemote_SuccessFalseFallsThrough(t *testing.T) {
	raw := json.RawMessage(`{"success":false,"message":"query rejected"}`)
	r := NormalizeRemote(raw)
	assert.Equal(t, "query rejected", r.Rendered)
}

func TestNormalizeLocal_EmptyResultSet(t *testing.T) {
	r := NormalizeLocal([]string{"id", "name"}, nil)
	require.True(t, r.Succeeded)
	assert.Equal(t, BackendLocal, r.Backend)
	assert.Equal(t, msgNoResults, r.Rendered)
	require.NotNil(t, r.Rows)
	assert.Equal(t, 0, *r.Rows)
}

func TestNormalizeLocal_RendersFullTableWithoutCap(t *testing.T) {
	rows := make([][]any, 0, remoteRowCap+5)
	for i := range remoteRowCap + 5 {
		rows = append(rows, []any{i, "row"})
	}
	r := NormalizeLocal([]string{"id", "label"}, rows)

	require.NotNil(t, r.Rows)
	assert.Equal(t, remoteRowCap+5, *r.Rows)

	lines := strings.Split(strings.TrimSpace(r.Rendered), "\n")
	assert.Len(t, lines, 2+remoteRowCap+5, "local rendering has no row cap")
	assert.Contains(t, lines[0], "| id | label |")
}

func TestNormalizeLocal_ShortRowPadsCells(t *testing.T) {
	r := NormalizeLocal([]string{"a", "b", "c"}, [][]any{{1, 2}})
	assert.True(t, r.Succeeded)
	assert.Contains(t, r.Rendered, "| a | b | c |")
}

func TestNoBackend_AlwaysHasMessage(t *testing.T) {
	r := NoBackend("")
	assert.False(t, r.Succeeded)
	assert.Equal(t, BackendNone, r.Backend)
	assert.NotEmpty(t, r.Rendered)

	r = NoBackend("nothing usable")
	assert.Equal(t, "nothing usable", r.Rendered)
}

func TestFailure(t *testing.T) {
	r := Failure(BackendRemote, "", assertErr("boom"))
	assert.False(t, r.Succeeded)
	assert.Equal(t, "boom", r.RawError)
	assert.NotEmpty(t, r.Rendered)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestOrderedKeys(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{`{"z":1,"a":{"nested":true},"m":[1,2,3]}`, []string{"z", "a", "m"}},
		{`{}`, nil},
		{`[1,2]`, nil},
		{`"str"`, nil},
	}

	for _, tt := range tests {
		got := orderedKeys(json.RawMessage(tt.raw))
		assert.Equal(t, tt.want, got, "raw=%s", tt.raw)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "x", formatValue("x"))
	assert.Equal(t, "3", formatValue(float64(3)))
	assert.Equal(t, "3.5", formatValue(3.5))
	assert.Equal(t, "true", formatValue(true))
}
