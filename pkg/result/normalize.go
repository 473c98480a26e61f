package result

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	// remoteRowCap bounds how many rows of a remote payload are rendered.
	// The full count is still reported; the cap only conserves rendered
	// size. Local result sets are not capped.
	remoteRowCap = 20

	// msgNoRows is the fixed rendering for a remote tabular payload with
	// zero rows.
	msgNoRows = "Query returned 0 rows."

	// msgNoResults is the fixed rendering for an empty local result set.
	msgNoResults = "No results found."

	// msgEmptyPayload renders an empty-but-successful remote payload.
	msgEmptyPayload = "(empty result)"
)

// tabularPayload is the structured success shape some bridge tools return.
type tabularPayload struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// NormalizeRemote converts a raw bridge result payload into the canonical
// Result. Shapes are probed in fixed priority order:
//
//  1. structured success flag + tabular data
//  2. alternate text fields: message, text, markdown
//  3. generic rendering of the whole payload
//
// The payload reached us without a transport error, so the result is
// always marked succeeded; normalization never fails.
func NormalizeRemote(raw json.RawMessage) Result {
	r := Result{Succeeded: true, Backend: BackendRemote}

	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		r.Rendered = msgEmptyPayload
		return r
	}

	var tab tabularPayload
	if err := json.Unmarshal(raw, &tab); err == nil && tab.Success != nil && *tab.Success && tab.Data != nil {
		if rendered, rows, ok := renderTabular(tab); ok {
			r.Rendered = rendered
			r.Rows = rows
			return r
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		r.Rendered = alternateText(fields)
		if r.Rendered == "" {
			r.Rendered = genericRender(raw)
		}
		r.Rows = legacyRowCount(fields)
		return r
	}

	r.Rendered = genericRender(raw)
	return r
}

// renderTabular renders a structured tabular payload. ok is false when the
// data field is not a row list, in which case the caller falls through to
// field probing.
func renderTabular(tab tabularPayload) (string, *int, bool) {
	var rowsRaw []json.RawMessage
	if err := json.Unmarshal(tab.Data, &rowsRaw); err != nil {
		return "", nil, false
	}

	if len(rowsRaw) == 0 {
		if tab.Message != "" {
			return tab.Message, intPtr(0), true
		}
		return msgNoRows, intPtr(0), true
	}

	headers := orderedKeys(rowsRaw[0])
	if len(headers) == 0 {
		return "", nil, false
	}

	rows := make([]map[string]any, 0, len(rowsRaw))
	for _, rr := range rowsRaw {
		var row map[string]any
		if err := json.Unmarshal(rr, &row); err != nil {
			return "", nil, false
		}
		rows = append(rows, row)
	}

	capped := rows
	if len(capped) > remoteRowCap {
		capped = capped[:remoteRowCap]
	}

	w := table.NewWriter()
	headerRow := make(table.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	w.AppendHeader(headerRow)
	for _, row := range capped {
		cells := make(table.Row, len(headers))
		for i, h := range headers {
			cells[i] = formatValue(row[h])
		}
		w.AppendRow(cells)
	}
	return w.RenderMarkdown(), intPtr(len(rows)), true
}

// alternateText probes the known alternate text fields in priority order.
func alternateText(fields map[string]any) string {
	for _, key := range []string{"message", "text", "markdown"} {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// legacyRowCount probes the historical count field names in priority
// order. Absence means nil: count unknown, not zero.
func legacyRowCount(fields map[string]any) *int {
	for _, key := range []string{"row_count", "rows", "recordCount"} {
		if v, ok := fields[key]; ok {
			if n, ok := toInt(v); ok {
				return intPtr(n)
			}
		}
	}
	return nil
}

// genericRender falls back to a textual rendering of the whole payload. A
// bare JSON string renders as its value; everything else as compact JSON.
func genericRender(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return msgEmptyPayload
		}
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// NormalizeLocal converts a local result set into the canonical Result. An
// empty set renders the fixed no-results message; a non-empty one renders
// as a full markdown table with no row cap.
func NormalizeLocal(columns []string, rows [][]any) Result {
	r := Result{Succeeded: true, Backend: BackendLocal, Rows: intPtr(len(rows))}
	if len(rows) == 0 {
		r.Rendered = msgNoResults
		return r
	}

	w := table.NewWriter()
	headerRow := make(table.Row, len(columns))
	for i, c := range columns {
		headerRow[i] = c
	}
	w.AppendHeader(headerRow)
	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[i] = formatValue(row[i])
			} else {
				cells[i] = ""
			}
		}
		w.AppendRow(cells)
	}
	r.Rendered = w.RenderMarkdown()
	return r
}

// RenderObjectTable renders arbitrary header/row data as a markdown table.
// Used for catalog summaries.
func RenderObjectTable(headers []string, rows [][]string) string {
	w := table.NewWriter()
	headerRow := make(table.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	w.AppendHeader(headerRow)
	for _, row := range rows {
		cells := make(table.Row, len(row))
		for i, cell := range row {
			cells[i] = cell
		}
		w.AppendRow(cells)
	}
	return w.RenderMarkdown()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fractional part.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// orderedKeys extracts the top-level keys of a JSON object in their
// original order. Decoding into a map loses order, so the token stream is
// walked directly. Returns nil when raw is not an object.
func orderedKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return keys
		}
	}
	return keys
}

// skipValue consumes one JSON value, descending through nested containers.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
