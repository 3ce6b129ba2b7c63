package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when ONNX bytes are not a valid protobuf encoding.
var ErrMalformed = errors.New("onnx: malformed protobuf")

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
//
// Only the fields voxnet understands are decoded; everything else is skipped.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// parser walks the fields of one protobuf message.
type parser struct {
	data []byte
	pos  int
}

// next reads the next field tag. ok is false at the end of the message.
func (p *parser) next() (num protowire.Number, typ protowire.Type, ok bool, err error) {
	if p.pos >= len(p.data) {
		return 0, 0, false, nil
	}
	num, typ, n := protowire.ConsumeTag(p.data[p.pos:])
	if n < 0 {
		return 0, 0, false, wireError(n)
	}
	p.pos += n
	return num, typ, true, nil
}

func (p *parser) varint(typ protowire.Type) (int64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: expected varint, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeVarint(p.data[p.pos:])
	if n < 0 {
		return 0, wireError(n)
	}
	p.pos += n
	return int64(v), nil //nolint:gosec // G115: protobuf int64 fields are two's complement varints.
}

func (p *parser) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: expected bytes, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeBytes(p.data[p.pos:])
	if n < 0 {
		return nil, wireError(n)
	}
	p.pos += n
	return v, nil
}

func (p *parser) str(typ protowire.Type) (string, error) {
	b, err := p.bytes(typ)
	return string(b), err
}

func (p *parser) float(typ protowire.Type) (float32, error) {
	if typ != protowire.Fixed32Type {
		return 0, fmt.Errorf("%w: expected fixed32, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeFixed32(p.data[p.pos:])
	if n < 0 {
		return 0, wireError(n)
	}
	p.pos += n
	return math.Float32frombits(v), nil
}

// int64s reads a repeated int64 field in packed or unpacked form.
func (p *parser) int64s(dst []int64, typ protowire.Type) ([]int64, error) {
	if typ == protowire.VarintType {
		v, err := p.varint(typ)
		return append(dst, v), err
	}
	packed, err := p.bytes(typ)
	if err != nil {
		return dst, err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return dst, wireError(n)
		}
		dst = append(dst, int64(v)) //nolint:gosec // G115: two's complement varint.
		packed = packed[n:]
	}
	return dst, nil
}

// floats reads a repeated float field in packed or unpacked form.
func (p *parser) floats(dst []float32, typ protowire.Type) ([]float32, error) {
	if typ == protowire.Fixed32Type {
		v, err := p.float(typ)
		return append(dst, v), err
	}
	packed, err := p.bytes(typ)
	if err != nil {
		return dst, err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed32(packed)
		if n < 0 {
			return dst, wireError(n)
		}
		dst = append(dst, math.Float32frombits(v))
		packed = packed[n:]
	}
	return dst, nil
}

// skip discards the value of an unknown field.
func (p *parser) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, p.data[p.pos:])
	if n < 0 {
		return wireError(n)
	}
	p.pos += n
	return nil
}

// message reads an embedded message with read.
func message[T any](p *parser, typ protowire.Type, read func([]byte, *T) error) (T, error) {
	var msg T
	data, err := p.bytes(typ)
	if err != nil {
		return msg, err
	}
	err = read(data, &msg)
	return msg, err
}

func wireError(n int) error {
	return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
}

// decode drives a field switch over data until the message is exhausted.
func decode(data []byte, field func(p *parser, num protowire.Number, typ protowire.Type) error) error {
	p := &parser{data: data}
	for {
		num, typ, ok, err := p.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := field(p, num, typ); err != nil {
			return err
		}
	}
}

func readModelProto(data []byte, m *ModelProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // ir_version
			m.IRVersion, err = p.varint(typ)
		case 2: // producer_name
			m.ProducerName, err = p.str(typ)
		case 3: // producer_version
			m.ProducerVersion, err = p.str(typ)
		case 4: // domain
			m.Domain, err = p.str(typ)
		case 5: // model_version
			m.ModelVersion, err = p.varint(typ)
		case 6: // doc_string
			m.DocString, err = p.str(typ)
		case 7: // graph
			var g GraphProto
			g, err = message(p, typ, readGraphProto)
			m.Graph = &g
		case 8: // opset_import
			var op OperatorSetID
			op, err = message(p, typ, readOperatorSetID)
			m.OpsetImport = append(m.OpsetImport, op)
		case 14: // metadata_props
			var e StringStringEntry
			e, err = message(p, typ, readStringStringEntry)
			m.MetadataProps = append(m.MetadataProps, e)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readGraphProto(data []byte, m *GraphProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // node
			var n NodeProto
			n, err = message(p, typ, readNodeProto)
			m.Nodes = append(m.Nodes, n)
		case 2: // name
			m.Name, err = p.str(typ)
		case 5: // initializer
			var t TensorProto
			t, err = message(p, typ, readTensorProto)
			m.Initializers = append(m.Initializers, t)
		case 10: // doc_string
			m.DocString, err = p.str(typ)
		case 11: // input
			var v ValueInfoProto
			v, err = message(p, typ, readValueInfoProto)
			m.Inputs = append(m.Inputs, v)
		case 12: // output
			var v ValueInfoProto
			v, err = message(p, typ, readValueInfoProto)
			m.Outputs = append(m.Outputs, v)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readNodeProto(data []byte, m *NodeProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // input
			var s string
			s, err = p.str(typ)
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			var s string
			s, err = p.str(typ)
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = p.str(typ)
		case 4: // op_type
			m.OpType, err = p.str(typ)
		case 5: // attribute
			var a AttributeProto
			a, err = message(p, typ, readAttributeProto)
			m.Attributes = append(m.Attributes, a)
		case 6: // doc_string
			m.DocString, err = p.str(typ)
		case 7: // domain
			m.Domain, err = p.str(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readTensorProto(data []byte, m *TensorProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // dims
			m.Dims, err = p.int64s(m.Dims, typ)
		case 2: // data_type
			var v int64
			v, err = p.varint(typ)
			m.DataType = int32(v) //nolint:gosec // G115: enum value.
		case 4: // float_data
			m.FloatData, err = p.floats(m.FloatData, typ)
		case 5: // int32_data
			var vs []int64
			vs, err = p.int64s(nil, typ)
			for _, v := range vs {
				m.Int32Data = append(m.Int32Data, int32(v)) //nolint:gosec // G115: int32 field.
			}
		case 7: // int64_data
			m.Int64Data, err = p.int64s(m.Int64Data, typ)
		case 8: // name
			m.Name, err = p.str(typ)
		case 9: // raw_data
			m.RawData, err = p.bytes(typ)
		case 12: // doc_string
			m.DocString, err = p.str(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readValueInfoProto(data []byte, m *ValueInfoProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // name
			m.Name, err = p.str(typ)
		case 2: // type
			var t TypeProto
			t, err = message(p, typ, readTypeProto)
			m.Type = &t
		case 3: // doc_string
			m.DocString, err = p.str(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readTypeProto(data []byte, m *TypeProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		if num != 1 { // tensor_type
			return p.skip(num, typ)
		}
		t, err := message(p, typ, readTensorTypeProto)
		m.TensorType = &t
		return err
	})
}

func readTensorTypeProto(data []byte, m *TensorTypeProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // elem_type
			var v int64
			v, err = p.varint(typ)
			m.ElemType = int32(v) //nolint:gosec // G115: enum value.
		case 2: // shape
			var s TensorShapeProto
			s, err = message(p, typ, readTensorShapeProto)
			m.Shape = &s
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readTensorShapeProto(data []byte, m *TensorShapeProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		if num != 1 { // dim
			return p.skip(num, typ)
		}
		d, err := message(p, typ, readDimensionProto)
		m.Dims = append(m.Dims, d)
		return err
	})
}

func readDimensionProto(data []byte, m *DimensionProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // dim_value
			m.DimValue, err = p.varint(typ)
		case 2: // dim_param
			m.DimParam, err = p.str(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readAttributeProto(data []byte, m *AttributeProto) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // name
			m.Name, err = p.str(typ)
		case 2: // f
			m.F, err = p.float(typ)
		case 3: // i
			m.I, err = p.varint(typ)
		case 4: // s
			m.S, err = p.bytes(typ)
		case 6: // floats
			m.Floats, err = p.floats(m.Floats, typ)
		case 7: // ints
			m.Ints, err = p.int64s(m.Ints, typ)
		case 8: // strings
			var b []byte
			b, err = p.bytes(typ)
			m.Strings = append(m.Strings, b)
		case 13: // doc_string
			m.DocString, err = p.str(typ)
		case 20: // type
			var v int64
			v, err = p.varint(typ)
			m.Type = int32(v) //nolint:gosec // G115: enum value.
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readOperatorSetID(data []byte, m *OperatorSetID) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // domain
			m.Domain, err = p.str(typ)
		case 2: // version
			m.Version, err = p.varint(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}

func readStringStringEntry(data []byte, m *StringStringEntry) error {
	return decode(data, func(p *parser, num protowire.Number, typ protowire.Type) error {
		var err error
		switch num {
		case 1: // key
			m.Key, err = p.str(typ)
		case 2: // value
			m.Value, err = p.str(typ)
		default:
			err = p.skip(num, typ)
		}
		return err
	})
}
