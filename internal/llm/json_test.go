package llm

import "testing"

func TestParseJSONResponsePlain(t *testing.T) {
	m := ParseJSONResponse(`{"label": "negative", "confidence": 0.9}`)
	if m == nil {
		t.Fatal("expected parsed map, got nil")
	}
	if GetString(m, "label", "") != "negative" {
		t.Errorf("expected label 'negative', got %q", GetString(m, "label", ""))
	}
	if GetFloat(m, "confidence", 0) != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", GetFloat(m, "confidence", 0))
	}
}

func TestParseJSONResponseCodeFence(t *testing.T) {
	text := "```json\n{\"topic\": \"macro\"}\n```"
	m := ParseJSONResponse(text)
	if m == nil {
		t.Fatal("expected fenced JSON to parse")
	}
	if GetString(m, "topic", "") != "macro" {
		t.Errorf("expected topic 'macro', got %q", GetString(m, "topic", ""))
	}
}

func TestParseJSONResponseGarbage(t *testing.T) {
	if m := ParseJSONResponse("the market went up today"); m != nil {
		t.Errorf("expected nil for non-JSON, got %v", m)
	}
	if m := ParseJSONResponse(""); m != nil {
		t.Errorf("expected nil for empty input, got %v", m)
	}
}

func TestGetHelpersFallbacks(t *testing.T) {
	m := map[string]any{"n": 5.0, "s": "x", "arr": []any{"a", 1.0, "b"}}

	if GetString(m, "missing", "fb") != "fb" {
		t.Error("expected fallback for missing string")
	}
	if GetString(m, "n", "fb") != "fb" {
		t.Error("expected fallback for wrong-typed string")
	}
	if GetFloat(m, "s", 2.5) != 2.5 {
		t.Error("expected fallback for wrong-typed float")
	}

	arr := GetStrings(m, "arr")
	if len(arr) != 2 || arr[0] != "a" || arr[1] != "b" {
		t.Errorf("expected non-strings dropped, got %v", arr)
	}
}
