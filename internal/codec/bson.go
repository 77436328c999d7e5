package codec

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/ir"
)

// MarshalBSON encodes the flat map of e as a BSON document. Bytes fields
// become BSON binary.
func (c *Codec) MarshalBSON(e *entity.Entity) ([]byte, error) {
	doc := bson.M{}
	for q, v := range c.Encode(e) {
		doc[q] = ir.Native(v)
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode bson %s: %w", e.GlobalID(), err)
	}
	return data, nil
}

// UnmarshalBSON decodes a document produced by MarshalBSON.
func (c *Codec) UnmarshalBSON(data []byte) (*entity.Entity, error) {
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode bson: %w", err)
	}
	v, err := fromBSON(doc)
	if err != nil {
		return nil, fmt.Errorf("decode bson: %w", err)
	}
	return c.Decode(v.(ir.IRMap))
}

// fromBSON maps the values the bson decoder produces onto IR values.
func fromBSON(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case bson.M:
		out := make(ir.IRMap, len(val))
		for k, elem := range val {
			e, err := fromBSON(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = e
		}
		return out, nil
	case bson.D:
		out := make(ir.IRMap, len(val))
		for _, elem := range val {
			e, err := fromBSON(elem.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", elem.Key, err)
			}
			out[elem.Key] = e
		}
		return out, nil
	case bson.A:
		out := make(ir.IRList, len(val))
		for i, elem := range val {
			e, err := fromBSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	case primitive.Binary:
		return ir.IRBytes(val.Data), nil
	default:
		return ir.From(v)
	}
}
