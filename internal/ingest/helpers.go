package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

var errBodyNotObject = errors.New("log body is not an object")

// ExtractAttrs finds the attribute value by precedence: logAttrs > scopeAttrs > resourceAttrs.
// Returns the canonical string representation and true if the key was found.
func ExtractAttrs(key string, logAttrs, scopeAttrs, resourceAttrs []*commonpb.KeyValue) (string, bool) {
	if v, ok := findInKVs(key, logAttrs); ok {
		return v, true
	}

	if v, ok := findInKVs(key, scopeAttrs); ok {
		return v, true
	}

	if v, ok := findInKVs(key, resourceAttrs); ok {
		return v, true
	}

	return "", false
}

func findInKVs(key string, kvs []*commonpb.KeyValue) (string, bool) {
	for _, kv := range kvs {
		if kv.GetKey() == key {
			if kv.GetValue() == nil {
				return "", false
			}

			return anyToString(kv.GetValue()), true
		}
	}

	return "", false
}

func anyToString(v *commonpb.AnyValue) string {
	switch x := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		if x.BoolValue {
			return "true"
		}

		return "false"
	case *commonpb.AnyValue_IntValue:
		return fmt.Sprintf("%d", x.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return fmt.Sprintf("%g", x.DoubleValue)
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(x.BytesValue)
	default:
		return "<unknown>"
	}
}

// anyToNative converts an OTLP value into the plain Go value encoding/json
// would produce for it: maps, slices, strings, numbers and bools.
func anyToNative(v *commonpb.AnyValue) any {
	if v == nil {
		return nil
	}

	switch x := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		return x.BoolValue
	case *commonpb.AnyValue_IntValue:
		return x.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(x.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		out := make([]any, 0, len(x.ArrayValue.GetValues()))
		for _, e := range x.ArrayValue.GetValues() {
			out = append(out, anyToNative(e))
		}

		return out
	case *commonpb.AnyValue_KvlistValue:
		out := make(map[string]any, len(x.KvlistValue.GetValues()))
		for _, kv := range x.KvlistValue.GetValues() {
			out[kv.GetKey()] = anyToNative(kv.GetValue())
		}

		return out
	default:
		return nil
	}
}

// bodyFields returns the payload carried by a log record body. The body is
// either a key/value list or a string holding a JSON object.
func bodyFields(body *commonpb.AnyValue) (map[string]any, error) {
	switch x := body.GetValue().(type) {
	case *commonpb.AnyValue_KvlistValue:
		fields, _ := anyToNative(body).(map[string]any)
		return fields, nil
	case *commonpb.AnyValue_StringValue:
		var fields map[string]any
		if err := json.Unmarshal([]byte(x.StringValue), &fields); err != nil {
			return nil, fmt.Errorf("%w: %w", errBodyNotObject, err)
		}

		return fields, nil
	default:
		return nil, errBodyNotObject
	}
}
