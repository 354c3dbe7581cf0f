package firestore

import (
	"fmt"
	"strconv"
	"time"
)

// value is the typed Firestore REST value. Exactly one field is set.
type value struct {
	NullValue      *string     `json:"nullValue,omitempty"`
	BooleanValue   *bool       `json:"booleanValue,omitempty"`
	IntegerValue   *string     `json:"integerValue,omitempty"`
	DoubleValue    *float64    `json:"doubleValue,omitempty"`
	TimestampValue *string     `json:"timestampValue,omitempty"`
	StringValue    *string     `json:"stringValue,omitempty"`
	MapValue       *mapValue   `json:"mapValue,omitempty"`
	ArrayValue     *arrayValue `json:"arrayValue,omitempty"`
}

type mapValue struct {
	Fields map[string]value `json:"fields"`
}

type arrayValue struct {
	Values []value `json:"values"`
}

func ptr[T any](v T) *T { return &v }

func encodeValue(v any) (value, error) {
	switch x := v.(type) {
	case nil:
		return value{NullValue: ptr("NULL_VALUE")}, nil
	case bool:
		return value{BooleanValue: ptr(x)}, nil
	case int:
		return value{IntegerValue: ptr(strconv.FormatInt(int64(x), 10))}, nil
	case int32:
		return value{IntegerValue: ptr(strconv.FormatInt(int64(x), 10))}, nil
	case int64:
		return value{IntegerValue: ptr(strconv.FormatInt(x, 10))}, nil
	case float64:
		return value{DoubleValue: ptr(x)}, nil
	case string:
		return value{StringValue: ptr(x)}, nil
	case time.Time:
		return value{TimestampValue: ptr(x.UTC().Format(time.RFC3339Nano))}, nil
	case map[string]any:
		fields := make(map[string]value, len(x))
		for k, item := range x {
			enc, err := encodeValue(item)
			if err != nil {
				return value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = enc
		}
		return value{MapValue: &mapValue{Fields: fields}}, nil
	case []any:
		values := make([]value, 0, len(x))
		for i, item := range x {
			enc, err := encodeValue(item)
			if err != nil {
				return value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			values = append(values, enc)
		}
		return value{ArrayValue: &arrayValue{Values: values}}, nil
	case []string:
		values := make([]value, 0, len(x))
		for _, item := range x {
			values = append(values, value{StringValue: ptr(item)})
		}
		return value{ArrayValue: &arrayValue{Values: values}}, nil
	default:
		return value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (v value) decode() any {
	switch {
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return *v.IntegerValue
		}
		return n
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.TimestampValue != nil:
		t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
		if err != nil {
			return *v.TimestampValue
		}
		return t
	case v.StringValue != nil:
		return *v.StringValue
	case v.MapValue != nil:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, item := range v.MapValue.Fields {
			out[k] = item.decode()
		}
		return out
	case v.ArrayValue != nil:
		out := make([]any, 0, len(v.ArrayValue.Values))
		for _, item := range v.ArrayValue.Values {
			out = append(out, item.decode())
		}
		return out
	}
	return nil
}
