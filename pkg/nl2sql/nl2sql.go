// Package nl2sql turns natural-language questions into candidate SQL.
//
// The pipeline here is deliberately simple deterministic text processing:
// keyword scoring for intent and table selection, and builder-generated
// SQL. It carries no failure semantics of its own; execution concerns live
// in pkg/backend.
package nl2sql

import (
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Intent classifies what the user is asking for.
type Intent string

// Intents.
const (
	// IntentMetadata asks about the catalog itself (tables, columns,
	// structure) and needs no SQL.
	IntentMetadata Intent = "metadata"

	// IntentQuery asks about the data and needs SQL generated.
	IntentQuery Intent = "query"
)

// defaultRowLimit bounds generated exploratory queries.
const defaultRowLimit = 10

// metadataKeywords trigger the metadata intent when present as words in
// the question.
var metadataKeywords = map[string]struct{}{
	"schema":    {},
	"schemas":   {},
	"table":     {},
	"tables":    {},
	"view":      {},
	"views":     {},
	"column":    {},
	"columns":   {},
	"catalog":   {},
	"structure": {},
	"describe":  {},
	"metadata":  {},
}

// ClassifyIntent decides whether a question is about the catalog or the
// data. Questions listing or describing database objects are metadata;
// everything else generates SQL.
func ClassifyIntent(question string) Intent {
	for _, word := range tokenize(question) {
		if _, ok := metadataKeywords[word]; ok {
			return IntentMetadata
		}
	}
	return IntentQuery
}

// CatalogObject is the slice of the schema catalog table selection needs.
type CatalogObject struct {
	Name    string
	Columns []string
}

// SelectTables scores catalog objects by keyword overlap with the
// question and returns names in descending score order. Objects that
// score zero are dropped; when nothing scores, all names are returned in
// catalog order so downstream generation still has candidates.
func SelectTables(question string, catalog []CatalogObject) []string {
	words := make(map[string]struct{})
	for _, w := range tokenize(question) {
		words[w] = struct{}{}
	}

	type scored struct {
		name  string
		score int
		order int
	}
	var matches []scored
	for i, obj := range catalog {
		s := scoreObject(words, obj)
		if s > 0 {
			matches = append(matches, scored{name: obj.Name, score: s, order: i})
		}
	}

	if len(matches) == 0 {
		names := make([]string, 0, len(catalog))
		for _, obj := range catalog {
			names = append(names, obj.Name)
		}
		return names
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.name)
	}
	return names
}

// scoreObject counts question words that appear in the object name or its
// column names. Name matches weigh more than column matches.
func scoreObject(words map[string]struct{}, obj CatalogObject) int {
	score := 0
	for _, part := range tokenize(obj.Name) {
		if _, ok := words[part]; ok {
			score += 2
		}
	}
	for _, col := range obj.Columns {
		for _, part := range tokenize(col) {
			if _, ok := words[part]; ok {
				score++
			}
		}
	}
	return score
}

// PlaceholderSQL is generated when no tables are selected. Callers check
// for it before attempting execution.
const PlaceholderSQL = "-- no tables selected"

// GenerateSQL drafts a candidate query for the question against the
// selected tables. The current generation strategy is an exploratory
// select from the top-ranked table.
func GenerateSQL(_ string, tables []string) string {
	if len(tables) == 0 {
		return PlaceholderSQL
	}
	query, _, err := sq.Select("*").
		From(tables[0]).
		Limit(defaultRowLimit).
		ToSql()
	if err != nil {
		return PlaceholderSQL
	}
	return query
}

// ApplyQualityFilters is the relevance/risk gate for generated SQL. The
// bridge enforces read-only execution server-side; nothing is filtered
// client-side yet.
func ApplyQualityFilters(_ string) bool {
	return true
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		}
		return true
	})
}
