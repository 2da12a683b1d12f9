package store

import (
	"fmt"
	"reflect"

	"github.com/qdrant/go-client/qdrant"
)

// toQdrantPayload converts a metadata map into the Qdrant payload
// representation. Values outside the JSON-like set are stringified so
// an odd metadata value never aborts an upsert.
func toQdrantPayload(m map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		payload[k] = toQdrantValue(v)
	}
	return payload
}

func toQdrantValue(v any) *qdrant.Value {
	switch t := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: t}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: t}}
	case int:
		return intValue(int64(t))
	case int32:
		return intValue(int64(t))
	case int64:
		return intValue(t)
	case uint:
		return intValue(int64(t))
	case uint32:
		return intValue(int64(t))
	case uint64:
		return intValue(int64(t))
	case float32:
		return doubleValue(float64(t))
	case float64:
		return doubleValue(t)
	case []string:
		values := make([]*qdrant.Value, len(t))
		for i, s := range t {
			values[i] = toQdrantValue(s)
		}
		return listValue(values)
	case []any:
		values := make([]*qdrant.Value, len(t))
		for i, e := range t {
			values[i] = toQdrantValue(e)
		}
		return listValue(values)
	case map[string]any:
		return structValue(toQdrantPayload(t))
	case map[string]string:
		fields := make(map[string]*qdrant.Value, len(t))
		for k, s := range t {
			fields[k] = toQdrantValue(s)
		}
		return structValue(fields)
	}

	// Remaining slices and maps are lowered reflectively. Anything
	// else is stringified.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		values := make([]*qdrant.Value, rv.Len())
		for i := range values {
			values[i] = toQdrantValue(rv.Index(i).Interface())
		}
		return listValue(values)
	case reflect.Map:
		fields := make(map[string]*qdrant.Value, rv.Len())
		for _, key := range rv.MapKeys() {
			fields[fmt.Sprint(key.Interface())] = toQdrantValue(rv.MapIndex(key).Interface())
		}
		return structValue(fields)
	}
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(v)}}
}

func intValue(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func listValue(values []*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func structValue(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
}

// fromQdrantPayload converts a Qdrant payload back into a plain Go map.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	m := make(map[string]any, len(payload))
	for k, v := range payload {
		m[k] = fromQdrantValue(v)
	}
	return m
}

func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, e := range values {
			list[i] = fromQdrantValue(e)
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	}
	return nil
}
