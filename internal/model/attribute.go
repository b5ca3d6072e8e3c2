package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type AttributeKind string

const (
	AttrNull   AttributeKind = "null"
	AttrString AttributeKind = "string"
	AttrNumber AttributeKind = "number"
	AttrBool   AttributeKind = "bool"
	AttrObject AttributeKind = "object"
	AttrArray  AttributeKind = "array"
)

// Attribute is one backend-supplied camera attribute. Exactly one of the value fields is
// meaningful, selected by Kind.
type Attribute struct {
	Kind   AttributeKind
	Text   string
	Number json.Number
	Bool   bool
	Object map[string]Attribute
	Items  []Attribute
}

func StringAttribute(s string) Attribute {
	return Attribute{Kind: AttrString, Text: s}
}

func ObjectAttribute(fields map[string]Attribute) Attribute {
	return Attribute{Kind: AttrObject, Object: fields}
}

func ParseAttribute(raw json.RawMessage) (Attribute, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Attribute{}, err
	}
	return attributeFromValue(v)
}

func attributeFromValue(v any) (Attribute, error) {
	switch val := v.(type) {
	case nil:
		return Attribute{Kind: AttrNull}, nil
	case string:
		return StringAttribute(val), nil
	case json.Number:
		return Attribute{Kind: AttrNumber, Number: val}, nil
	case bool:
		return Attribute{Kind: AttrBool, Bool: val}, nil
	case map[string]any:
		fields := make(map[string]Attribute, len(val))
		for k, item := range val {
			attr, err := attributeFromValue(item)
			if err != nil {
				return Attribute{}, err
			}
			fields[k] = attr
		}
		return ObjectAttribute(fields), nil
	case []any:
		items := make([]Attribute, 0, len(val))
		for _, item := range val {
			attr, err := attributeFromValue(item)
			if err != nil {
				return Attribute{}, err
			}
			items = append(items, attr)
		}
		return Attribute{Kind: AttrArray, Items: items}, nil
	default:
		return Attribute{}, fmt.Errorf("unsupported attribute value %T", v)
	}
}

func (a Attribute) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AttrString:
		return json.Marshal(a.Text)
	case AttrNumber:
		if a.Number == "" {
			return []byte("0"), nil
		}
		return []byte(a.Number.String()), nil
	case AttrBool:
		return json.Marshal(a.Bool)
	case AttrObject:
		return json.Marshal(a.Object)
	case AttrArray:
		return json.Marshal(a.Items)
	default:
		return []byte("null"), nil
	}
}

func (a *Attribute) UnmarshalJSON(data []byte) error {
	attr, err := ParseAttribute(data)
	if err != nil {
		return err
	}
	*a = attr
	return nil
}

// Display renders the attribute for a detail view: strings verbatim, everything else as
// compact JSON.
func (a Attribute) Display() string {
	switch a.Kind {
	case AttrString:
		return a.Text
	case AttrNumber:
		return a.Number.String()
	case AttrBool:
		return strconv.FormatBool(a.Bool)
	case AttrNull:
		return "null"
	}
	out, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return string(out)
}

// Structured returns the attribute as an object. String attributes holding an encoded JSON
// object are decoded on the fly; anything that does not decode is reported as not
// structured.
func (a Attribute) Structured() (map[string]Attribute, bool) {
	switch a.Kind {
	case AttrObject:
		return a.Object, true
	case AttrString:
		text := strings.TrimSpace(a.Text)
		if !strings.HasPrefix(text, "{") {
			return nil, false
		}
		decoded, err := ParseAttribute(json.RawMessage(text))
		if err != nil || decoded.Kind != AttrObject {
			return nil, false
		}
		return decoded.Object, true
	default:
		return nil, false
	}
}
