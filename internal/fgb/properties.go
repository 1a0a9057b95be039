package fgb

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/goccy/go-json"

	"github.com/tingold/mn-precincts/internal/layer"
)

// schema is the column layout shared by every feature of a file.
type schema struct {
	names []string
	types []flattypes.ColumnType
	index map[string]int
}

// inferSchema derives column types from the values in c, keeping c's column order.
func inferSchema(c *layer.Collection) *schema {
	s := &schema{
		names: append([]string(nil), c.Columns...),
		types: make([]flattypes.ColumnType, len(c.Columns)),
		index: make(map[string]int, len(c.Columns)),
	}

	for i, name := range s.names {
		s.index[name] = i
		typed := false
		for _, f := range c.Features {
			v, ok := f.Properties[name]
			if !ok || v == nil {
				continue
			}
			t := columnType(v)
			if !typed {
				s.types[i], typed = t, true
				continue
			}
			s.types[i] = promote(s.types[i], t)
		}
		if !typed {
			s.types[i] = flattypes.ColumnTypeString
		}
	}

	return s
}

// columns builds the header column table.
func (s *schema) columns(builder *flatbuffers.Builder) []*writer.Column {
	cols := make([]*writer.Column, 0, len(s.names))
	for i, name := range s.names {
		col := writer.NewColumn(builder)
		col.SetName(name)
		col.SetTitle(name)
		col.SetType(s.types[i])
		col.SetNullable(true)
		cols = append(cols, col)
	}
	return cols
}

// columnType picks the FlatGeobuf column type for a single decoded value.
// Whole float64 values and integral json.Number values count as Long.
func columnType(value any) flattypes.ColumnType {
	switch v := value.(type) {
	case bool:
		return flattypes.ColumnTypeBool
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeLong
	case float32:
		return flattypes.ColumnTypeDouble
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	default:
		return flattypes.ColumnTypeJson
	}
}

// promote returns the narrowest type able to hold both a and b.
func promote(a, b flattypes.ColumnType) flattypes.ColumnType {
	switch {
	case a == b:
		return a
	case isNumeric(a) && isNumeric(b):
		return flattypes.ColumnTypeDouble
	case a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson:
		return flattypes.ColumnTypeJson
	default:
		return flattypes.ColumnTypeString
	}
}

func isNumeric(t flattypes.ColumnType) bool {
	return t == flattypes.ColumnTypeLong || t == flattypes.ColumnTypeDouble
}

// encodeProperties encodes props in column order as
// [uint16 column index][value] pairs. Null and unconvertible values are omitted.
func encodeProperties(props map[string]any, s *schema) []byte {
	var buf []byte
	for i, name := range s.names {
		v, ok := props[name]
		if !ok || v == nil {
			continue
		}
		val, ok := encodeValue(v, s.types[i])
		if !ok {
			continue
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		buf = append(buf, val...)
	}
	return buf
}

func encodeValue(value any, t flattypes.ColumnType) ([]byte, bool) {
	switch t {
	case flattypes.ColumnTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, false
		}
		if b {
			return []byte{1}, true
		}
		return []byte{0}, true

	case flattypes.ColumnTypeLong:
		n, ok := toInt64(value)
		if !ok {
			return nil, false
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(n)), true

	case flattypes.ColumnTypeDouble:
		f, ok := toFloat64(value)
		if !ok {
			return nil, false
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)), true

	case flattypes.ColumnTypeString:
		return lengthPrefixed([]byte(toString(value))), true

	case flattypes.ColumnTypeJson:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, false
		}
		return lengthPrefixed(b), true
	}
	return nil, false
}

func lengthPrefixed(b []byte) []byte {
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(b)), uint32(len(b)))
	return append(out, b...)
}

// decodeProperties decodes FlatGeobuf binary properties using the header's columns.
func decodeProperties(data []byte, header *flattypes.Header) map[string]any {
	props := make(map[string]any)
	offset := 0

	for offset+2 <= len(data) {
		colIndex := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		var col flattypes.Column
		if colIndex >= header.ColumnsLength() || !header.Columns(&col, colIndex) {
			break
		}

		value, n := readValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}

	return props
}

// readValue reads one value of type t from data and returns it with the
// number of bytes consumed; 0 means the data was truncated or unsupported.
func readValue(data []byte, t flattypes.ColumnType) (any, int) {
	switch t {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0] != 0, 1

	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int64(int8(data[0])), 1

	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int64(data[0]), 1

	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int64(int16(binary.LittleEndian.Uint16(data))), 2

	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint16(data)), 2

	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), 4

	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint32(data)), 4

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8

	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return nil, 0
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4

	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime, flattypes.ColumnTypeJson:
		if len(data) < 4 {
			return nil, 0
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return nil, 0
		}
		raw := data[4 : 4+n]
		if t != flattypes.ColumnTypeJson {
			return string(raw), 4 + n
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw), 4 + n
		}
		return v, 4 + n
	}
	return nil, 0
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		return int64(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
