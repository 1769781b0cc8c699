package qdrant

import (
	"errors"
	"reflect"
	"testing"
)

func TestTranslateFilterEquality(t *testing.T) {
	must, mustNot, err := translateFilter(map[string]any{"topic": map[string]any{"$eq": "space"}})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(mustNot) != 0 {
		t.Fatalf("unexpected must_not %v", mustNot)
	}
	want := []any{map[string]any{"key": "topic", "match": map[string]any{"value": "space"}}}
	if !reflect.DeepEqual(must, want) {
		t.Fatalf("must = %v, want %v", must, want)
	}
}

func TestTranslateFilterBareScalar(t *testing.T) {
	must, _, err := translateFilter(map[string]any{"topic": "biology"})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(must) != 1 {
		t.Fatalf("must = %v", must)
	}
}

func TestTranslateFilterNeAndIn(t *testing.T) {
	must, mustNot, err := translateFilter(map[string]any{
		"topic":  map[string]any{"$in": []any{"space", "biology"}},
		"source": map[string]any{"$ne": "manual"},
	})
	if err != nil {
		t.Fatalf("translateFilter: %v", err)
	}
	if len(must) != 1 || len(mustNot) != 1 {
		t.Fatalf("must=%v mustNot=%v", must, mustNot)
	}
	cond := must[0].(map[string]any)
	if cond["key"] != "topic" {
		t.Fatalf("unexpected condition %v", cond)
	}
	match := cond["match"].(map[string]any)
	if _, ok := match["any"]; !ok {
		t.Fatalf("$in should become match.any, got %v", match)
	}
}

func TestTranslateFilterRejectsUnsupported(t *testing.T) {
	for _, filter := range []map[string]any{
		{"$and": []any{}},
		{"topic": map[string]any{"$gt": 3}},
		{"topic": map[string]any{"$in": []any{}}},
	} {
		_, _, err := translateFilter(filter)
		var operr *OperationError
		if !errors.As(err, &operr) {
			t.Fatalf("expected OperationError for %v, got %v", filter, err)
		}
	}
}

func TestTranslateFilterEmpty(t *testing.T) {
	must, mustNot, err := translateFilter(nil)
	if err != nil || must != nil || mustNot != nil {
		t.Fatalf("expected empty result, got %v %v %v", must, mustNot, err)
	}
}
