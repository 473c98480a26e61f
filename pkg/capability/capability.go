// Package capability maps abstract intents to concrete tool names
// advertised by a remote bridge.
//
// Bridge servers have shipped several naming schemes for the same logical
// operation. Each intent carries a priority-ordered alias list; resolution
// picks the first advertised alias and returns it together with the
// argument key that tool expects, so call shapes never mix a new name with
// an old argument convention.
package capability

import (
	"errors"
	"fmt"
)

// Intent identifies a logical remote operation.
type Intent string

// Known intents.
const (
	ReadQuery     Intent = "read_query"
	ListTables    Intent = "list_tables"
	ListViews     Intent = "list_views"
	DescribeTable Intent = "describe_table"
)

// ErrNoCapability is the sentinel wrapped by NoCapabilityError.
var ErrNoCapability = errors.New("no suitable capability")

// NoCapabilityError reports that neither the preferred name nor any alias
// for an intent is advertised.
type NoCapabilityError struct {
	Intent Intent
}

func (e *NoCapabilityError) Error() string {
	return fmt.Sprintf("no suitable capability advertised for intent %q", e.Intent)
}

// Unwrap lets errors.Is(err, ErrNoCapability) match.
func (e *NoCapabilityError) Unwrap() error { return ErrNoCapability }

// Binding pairs a resolved tool name with the argument key it expects.
// The key varies by tool name, not just by intent: read_data takes the
// query text under "query" while the older execute_sql family takes "sql".
type Binding struct {
	Name   string
	ArgKey string
}

// aliases holds the priority-ordered alias lists. The preferred name is
// first; order within each list is load-bearing.
var aliases = map[Intent][]Binding{
	ReadQuery: {
		{Name: "read_data", ArgKey: "query"},
		{Name: "execute_sql", ArgKey: "sql"},
		{Name: "executeSql", ArgKey: "sql"},
		{Name: "run_query", ArgKey: "sql"},
		{Name: "query", ArgKey: "sql"},
		{Name: "execute_sql_query", ArgKey: "sql"},
	},
	ListTables: {
		{Name: "list_table"},
		{Name: "list_tables"},
		{Name: "show_tables"},
	},
	ListViews: {
		{Name: "list_views"},
		{Name: "show_views"},
	},
	DescribeTable: {
		{Name: "describe_table", ArgKey: "tableName"},
		{Name: "describeTable", ArgKey: "tableName"},
		{Name: "table_info", ArgKey: "table"},
	},
}

// Resolve returns the binding for the first alias of intent present in the
// advertised set. Resolution never guesses: when nothing matches it returns
// a NoCapabilityError.
func Resolve(advertised []string, intent Intent) (Binding, error) {
	candidates, ok := aliases[intent]
	if !ok {
		return Binding{}, fmt.Errorf("unknown intent %q", intent)
	}

	names := make(map[string]struct{}, len(advertised))
	for _, n := range advertised {
		names[n] = struct{}{}
	}

	for _, b := range candidates {
		if _, ok := names[b.Name]; ok {
			return b, nil
		}
	}
	return Binding{}, &NoCapabilityError{Intent: intent}
}

// Preferred returns the first-choice name for an intent. Useful for
// diagnostics when resolution fails.
func Preferred(intent Intent) string {
	if c, ok := aliases[intent]; ok && len(c) > 0 {
		return c[0].Name
	}
	return ""
}
