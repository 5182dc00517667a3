package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySchema is returned when a schema declaration names no fields.
var ErrEmptySchema = errors.New("model: schema declares no fields")

// Schema is the ordered set of parsed-event field names shared by the parser
// and the record sink. It is built once at startup and never mutated.
type Schema struct {
	fields []string
	index  map[string]int
}

// NewSchema builds a schema from an ordered list of field names.
// Names are case-sensitive and must be unique.
func NewSchema(fields []string) (*Schema, error) {
	if len(fields) == 0 {
		return nil, ErrEmptySchema
	}
	s := &Schema{
		fields: make([]string, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, errors.New("model: schema field name is empty")
		}
		if _, dup := s.index[f]; dup {
			return nil, fmt.Errorf("model: duplicate schema field %q", f)
		}
		s.index[f] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// Fields returns a copy of the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// Has reports whether name is a declared field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// NewRecord returns an empty record with every field set to NULL.
func (s *Schema) NewRecord() *EventRecord {
	return &EventRecord{
		schema: s,
		values: make([]any, len(s.fields)),
	}
}
