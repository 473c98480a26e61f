// Package schema assembles the database catalog the agent reasons over,
// preferring remote bridge introspection and falling back to the local
// INFORMATION_SCHEMA.
package schema

// Object describes one table or view in the catalog.
type Object struct {
	// Name is the qualified name, e.g. "public.users".
	Name string `json:"name"`

	// Schema and Table are the split parts of Name.
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table,omitempty"`

	// Type is "table" or "view".
	Type string `json:"type"`

	// Columns in ordinal position order. May be empty when discovery
	// could not enrich the object.
	Columns []string `json:"columns"`
}
