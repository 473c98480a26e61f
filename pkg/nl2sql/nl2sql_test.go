package nl2sql

import (
	"testing"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"What tables are in the database?", IntentMetadata},
		{"Describe the orders table", IntentMetadata},
		{"Show me the schema", IntentMetadata},
		{"What columns does users have?", IntentMetadata},
		{"How many orders were placed last week?", IntentQuery},
		{"Top ten customers by revenue", IntentQuery},
		{"", IntentQuery},
	}

	for _, tt := range tests {
		if got := ClassifyIntent(tt.question); got != tt.want {
			t.Errorf("ClassifyIntent(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestSelectTables_ScoresByOverlap(t *testing.T) {
	catalog := []CatalogObject{
		{Name: "public.users", Columns: []string{"id", "name", "email"}},
		{Name: "public.orders", Columns: []string{"id", "user_id", "total"}},
		{Name: "public.products", Columns: []string{"id", "sku"}},
	}

	got := SelectTables("how many orders per user", catalog)
	if len(got) == 0 || got[0] != "public.orders" {
		t.Fatalf("SelectTables() = %v, want public.orders ranked first", got)
	}
}

func TestSelectTables_ColumnMatchesCount(t *testing.T) {
	catalog := []CatalogObject{
		{Name: "public.a", Columns: []string{"revenue"}},
		{Name: "public.b", Columns: []string{"other"}},
	}

	got := SelectTables("total revenue this month", catalog)
	if len(got) != 1 || got[0] != "public.a" {
		t.Fatalf("SelectTables() = %v, want [public.a]", got)
	}
}

func TestSelectTables_NoMatchesReturnsAll(t *testing.T) {
	catalog := []CatalogObject{
		{Name: "public.users"},
		{Name: "public.orders"},
	}

	got := SelectTables("zzz qqq", catalog)
	if len(got) != 2 || got[0] != "public.users" || got[1] != "public.orders" {
		t.Fatalf("SelectTables() = %v, want all names in catalog order", got)
	}
}

func TestSelectTables_EmptyCatalog(t *testing.T) {
	if got := SelectTables("anything", nil); len(got) != 0 {
		t.Fatalf("SelectTables() = %v, want empty", got)
	}
}

func TestGenerateSQL(t *testing.T) {
	got := GenerateSQL("show users", []string{"public.users", "public.orders"})
	want := "SELECT * FROM public.users LIMIT 10"
	if got != want {
		t.Errorf("GenerateSQL() = %q, want %q", got, want)
	}
}

func TestGenerateSQL_NoTables(t *testing.T) {
	if got := GenerateSQL("anything", nil); got != PlaceholderSQL {
		t.Errorf("GenerateSQL() = %q, want placeholder", got)
	}
}

func TestApplyQualityFilters(t *testing.T) {
	if !ApplyQualityFilters("SELECT * FROM users LIMIT 10") {
		t.Error("ApplyQualityFilters() = false, want true")
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Users.Email, ORDER-total!")
	want := []string{"users", "email", "order", "total"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
