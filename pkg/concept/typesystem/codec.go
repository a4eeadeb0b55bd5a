package typesystem

import (
	"encoding/json"

	"github.com/vertexdb/vertexdb/pkg/encoding"
)

func typeIDFromUint16(v uint16) encoding.TypeID {
	return encoding.TypeID(v)
}

// persistedCapability and persistedType are the JSON-serializable shapes
// of Capability and Type, matching the teacher's envelope-style encoding
// used for durable records elsewhere in the stack.
type persistedCapability struct {
	Kind        CapabilityKind `json:"kind"`
	Source      uint16         `json:"source"`
	Target      uint16         `json:"target"`
	Ordered     bool           `json:"ordered"`
	Annotations []Annotation   `json:"annotations,omitempty"`
}

type persistedType struct {
	ID           uint16                `json:"id"`
	Kind         Kind                  `json:"kind"`
	Label        Label                 `json:"label"`
	ValueType    ValueType             `json:"value_type,omitempty"`
	Supertype    *uint16               `json:"supertype,omitempty"`
	Abstract     bool                  `json:"abstract,omitempty"`
	Annotations  []Annotation          `json:"annotations,omitempty"`
	Capabilities []persistedCapability `json:"capabilities,omitempty"`
}

func encodeType(t *Type) ([]byte, error) {
	p := persistedType{
		ID:          uint16(t.ID),
		Kind:        t.Kind,
		Label:       t.Label,
		ValueType:   t.ValueType,
		Abstract:    t.Abstract,
		Annotations: t.Annotations,
	}
	if t.Supertype != nil {
		v := uint16(*t.Supertype)
		p.Supertype = &v
	}
	for _, c := range t.Capabilities {
		p.Capabilities = append(p.Capabilities, persistedCapability{
			Kind:        c.Kind,
			Source:      uint16(c.Source),
			Target:      uint16(c.Target),
			Ordered:     c.Ordered,
			Annotations: c.Annotations,
		})
	}
	return json.Marshal(p)
}

func decodeType(data []byte) (*Type, error) {
	var p persistedType
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	t := &Type{
		ID:          typeIDFromUint16(p.ID),
		Kind:        p.Kind,
		Label:       p.Label,
		ValueType:   p.ValueType,
		Abstract:    p.Abstract,
		Annotations: p.Annotations,
	}
	if p.Supertype != nil {
		v := typeIDFromUint16(*p.Supertype)
		t.Supertype = &v
	}
	for _, c := range p.Capabilities {
		t.Capabilities = append(t.Capabilities, Capability{
			Kind:        c.Kind,
			Source:      typeIDFromUint16(c.Source),
			Target:      typeIDFromUint16(c.Target),
			Ordered:     c.Ordered,
			Annotations: c.Annotations,
		})
	}
	return t, nil
}
