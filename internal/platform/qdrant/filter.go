package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

// translateFilter converts the Pinecone-style metadata filters our
// services build into Qdrant filter conditions. Supported per field:
// a bare scalar (equality), {"$eq": v}, {"$ne": v} and {"$in": [v...]}.
// The dedup path only ever uses equality on "topic"; the rest exists so
// both backends accept the same filter maps.
func translateFilter(filter map[string]any) (must, mustNot []any, err error) {
	if len(filter) == 0 {
		return nil, nil, nil
	}
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if strings.HasPrefix(field, "$") {
			return nil, nil, opErr("filter_translate", OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported top-level operator %q", field), nil)
		}
		value := filter[field]
		ops, isOpMap := value.(map[string]any)
		if !isOpMap {
			must = append(must, matchCondition(field, value))
			continue
		}
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, op := range opNames {
			opVal := ops[op]
			switch strings.ToLower(strings.TrimSpace(op)) {
			case "$eq":
				must = append(must, matchCondition(field, opVal))
			case "$ne":
				mustNot = append(mustNot, matchCondition(field, opVal))
			case "$in":
				values, ok := opVal.([]any)
				if !ok || len(values) == 0 {
					return nil, nil, opErr("filter_translate", OperationErrorValidation,
						fmt.Sprintf("operator $in for field %q expects a non-empty array", field), nil)
				}
				must = append(must, map[string]any{
					"key":   field,
					"match": map[string]any{"any": values},
				})
			default:
				return nil, nil, opErr("filter_translate", OperationErrorUnsupportedFilter,
					fmt.Sprintf("unsupported operator %q for field %q", op, field), nil)
			}
		}
	}
	return must, mustNot, nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}
