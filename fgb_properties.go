package cogj

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"
)

// column is one entry of a FlatGeobuf property schema. The position in the
// schema is the index written in front of every encoded value.
type column struct {
	Name string
	Type flattypes.ColumnType
}

// inferSchema collects every property name across the features, sorted by
// name, with the most general type seen for it.
func inferSchema(features []*geojson.Feature) []column {
	types := make(map[string]flattypes.ColumnType)
	for _, f := range features {
		for name, v := range f.Properties {
			t := columnTypeOf(v)
			if prev, ok := types[name]; ok {
				t = widenColumnType(prev, t)
			}
			types[name] = t
		}
	}
	schema := make([]column, 0, len(types))
	for name, t := range types {
		schema = append(schema, column{Name: name, Type: t})
	}
	slices.SortFunc(schema, func(a, b column) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schema
}

// columnTypeOf picks the column type for one property value. Nulls count as
// strings until another value says otherwise.
func columnTypeOf(v any) flattypes.ColumnType {
	switch v := v.(type) {
	case nil, string:
		return flattypes.ColumnTypeString
	case bool:
		return flattypes.ColumnTypeBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return flattypes.ColumnTypeInt
		}
		return flattypes.ColumnTypeLong
	case int8, int16, int32:
		return flattypes.ColumnTypeInt
	case int64:
		return flattypes.ColumnTypeLong
	case uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeUInt
	case uint64:
		return flattypes.ColumnTypeULong
	case float32:
		return flattypes.ColumnTypeFloat
	case float64:
		return flattypes.ColumnTypeDouble
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	default:
		return flattypes.ColumnTypeJson
	}
}

// numericRank orders the numeric column types from narrowest to widest.
var numericRank = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   0,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  2,
	flattypes.ColumnTypeShort:  3,
	flattypes.ColumnTypeUShort: 4,
	flattypes.ColumnTypeInt:    5,
	flattypes.ColumnTypeUInt:   6,
	flattypes.ColumnTypeLong:   7,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  9,
	flattypes.ColumnTypeDouble: 10,
}

// widenColumnType returns a type that can hold values of both a and b.
func widenColumnType(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}
	if a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson {
		return flattypes.ColumnTypeJson
	}
	if a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString {
		return flattypes.ColumnTypeString
	}
	ra, okA := numericRank[a]
	rb, okB := numericRank[b]
	if !okA || !okB {
		return flattypes.ColumnTypeJson
	}
	if ra > rb {
		return a
	}
	return b
}

// encodeProperties writes props in schema order as (uint16 column index,
// value) pairs. Values are converted to their column's type; nulls are
// omitted.
func encodeProperties(props geojson.Properties, schema []column) ([]byte, error) {
	var out []byte
	for i, col := range schema {
		v, ok := props[col.Name]
		if !ok || v == nil {
			continue
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(i))
		var err error
		if out, err = appendValue(out, v, col.Type); err != nil {
			return nil, fmt.Errorf("property %q: %w", col.Name, err)
		}
	}
	return out, nil
}

func appendValue(out []byte, v any, t flattypes.ColumnType) ([]byte, error) {
	le := binary.LittleEndian
	switch t {
	case flattypes.ColumnTypeBool:
		b, _ := v.(bool)
		if b {
			return append(out, 1), nil
		}
		return append(out, 0), nil
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		return append(append(out, asString(v)...), 0), nil
	case flattypes.ColumnTypeJson:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return append(append(out, raw...), 0), nil
	case flattypes.ColumnTypeBinary:
		raw, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("want []byte, got %T", v)
		}
		return append(le.AppendUint32(out, uint32(len(raw))), raw...), nil
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		f, ok := asFloat64(v)
		if !ok {
			return nil, fmt.Errorf("want a number, got %T", v)
		}
		if t == flattypes.ColumnTypeFloat {
			return le.AppendUint32(out, math.Float32bits(float32(f))), nil
		}
		return le.AppendUint64(out, math.Float64bits(f)), nil
	}

	n, ok := asInt64(v)
	if !ok {
		return nil, fmt.Errorf("want an integer, got %T", v)
	}
	switch t {
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		return append(out, byte(n)), nil
	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		return le.AppendUint16(out, uint16(n)), nil
	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		return le.AppendUint32(out, uint32(n)), nil
	case flattypes.ColumnTypeLong:
		return le.AppendUint64(out, uint64(n)), nil
	case flattypes.ColumnTypeULong:
		if u, ok := v.(uint64); ok {
			return le.AppendUint64(out, u), nil
		}
		return le.AppendUint64(out, uint64(n)), nil
	}
	return nil, fmt.Errorf("unsupported column type %s", flattypes.EnumNamesColumnType[t])
}

// fixedWidth is the encoded size of each fixed-size column type.
var fixedWidth = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   1,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  1,
	flattypes.ColumnTypeShort:  2,
	flattypes.ColumnTypeUShort: 2,
	flattypes.ColumnTypeInt:    4,
	flattypes.ColumnTypeUInt:   4,
	flattypes.ColumnTypeLong:   8,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  4,
	flattypes.ColumnTypeDouble: 8,
}

// decodeProperties reads the property bytes of one feature against the
// header's column schema.
func decodeProperties(data []byte, h *flattypes.Header) (geojson.Properties, error) {
	if len(data) == 0 {
		return nil, nil
	}
	props := make(geojson.Properties)
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated column index")
		}
		idx := int(binary.LittleEndian.Uint16(data))
		data = data[2:]

		var col flattypes.Column
		if idx >= h.ColumnsLength() || !h.Columns(&col, idx) {
			return nil, fmt.Errorf("column %d not in schema", idx)
		}
		v, n, err := readValue(data, col.Type())
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name(), err)
		}
		props[string(col.Name())] = v
		data = data[n:]
	}
	return props, nil
}

// readValue decodes one value and reports how many bytes it used.
func readValue(data []byte, t flattypes.ColumnType) (any, int, error) {
	le := binary.LittleEndian
	if w, ok := fixedWidth[t]; ok {
		if len(data) < w {
			return nil, 0, fmt.Errorf("want %d bytes, have %d", w, len(data))
		}
		switch t {
		case flattypes.ColumnTypeBool:
			return data[0] != 0, 1, nil
		case flattypes.ColumnTypeByte:
			return int8(data[0]), 1, nil
		case flattypes.ColumnTypeUByte:
			return data[0], 1, nil
		case flattypes.ColumnTypeShort:
			return int16(le.Uint16(data)), 2, nil
		case flattypes.ColumnTypeUShort:
			return le.Uint16(data), 2, nil
		case flattypes.ColumnTypeInt:
			return int32(le.Uint32(data)), 4, nil
		case flattypes.ColumnTypeUInt:
			return le.Uint32(data), 4, nil
		case flattypes.ColumnTypeLong:
			return int64(le.Uint64(data)), 8, nil
		case flattypes.ColumnTypeULong:
			return le.Uint64(data), 8, nil
		case flattypes.ColumnTypeFloat:
			return math.Float32frombits(le.Uint32(data)), 4, nil
		default:
			return math.Float64frombits(le.Uint64(data)), 8, nil
		}
	}

	switch t {
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		s, n := cString(data)
		return string(s), n, nil
	case flattypes.ColumnTypeJson:
		raw, n := cString(data)
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, 0, err
		}
		return v, n, nil
	case flattypes.ColumnTypeBinary:
		if len(data) < 4 {
			return nil, 0, fmt.Errorf("truncated binary length")
		}
		size := int(le.Uint32(data))
		if len(data)-4 < size {
			return nil, 0, fmt.Errorf("binary value of %d bytes truncated", size)
		}
		return data[4 : 4+size], 4 + size, nil
	}
	return nil, 0, fmt.Errorf("unsupported column type %s", flattypes.EnumNamesColumnType[t])
}

// cString returns the bytes up to a NUL terminator and the length consumed.
// An unterminated value runs to the end of data.
func cString(data []byte) ([]byte, int) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return data[:i], i + 1
	}
	return data, len(data)
}

func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := asInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

// asString renders non-string values as JSON.
func asString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
