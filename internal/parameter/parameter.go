package parameter

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync/atomic"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrOutOfRange       = errors.New("value out of range")
	ErrInvalidValue     = errors.New("invalid value")
	ErrDuplicateID      = errors.New("duplicate parameter id")
)

// Error is a rejected parameter definition or value update.
type Error struct {
	ID  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("parameter '%s': %v", e.ID, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type Type int

const (
	Boolean Type = iota
	Integer
	Float
	Enum
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Enum:
		return "enum"
	default:
		return "float"
	}
}

// Parameter is a host-editable value declared by a pattern script. The value is stored
// atomically: the host may write it from any goroutine while the scheduler reads it.
type Parameter struct {
	id          string
	name        string
	description string
	typ         Type
	min, max    float64
	def         float64
	values      []string
	value       atomic.Uint64
}

func newParameter(id, name, description string, typ Type, lo, hi, def float64, values []string) (*Parameter, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &Error{ID: id, Err: fmt.Errorf("%w: id must not be empty", ErrInvalidValue)}
	}
	if lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		return nil, &Error{ID: id, Err: fmt.Errorf("%w: invalid range [%v, %v]", ErrInvalidValue, lo, hi)}
	}
	if def < lo || def > hi {
		return nil, &Error{ID: id, Err: fmt.Errorf("%w: default %v not in [%v, %v]", ErrOutOfRange, def, lo, hi)}
	}
	if name == "" {
		name = id
	}
	p := &Parameter{
		id:          id,
		name:        name,
		description: description,
		typ:         typ,
		min:         lo,
		max:         hi,
		def:         def,
		values:      values,
	}
	p.value.Store(math.Float64bits(def))
	return p, nil
}

func NewBoolean(id string, def bool, name, description string) (*Parameter, error) {
	return newParameter(id, name, description, Boolean, 0, 1, boolValue(def), nil)
}

func NewInteger(id string, def, lo, hi int, name, description string) (*Parameter, error) {
	return newParameter(id, name, description, Integer, float64(lo), float64(hi), float64(def), nil)
}

func NewFloat(id string, def, lo, hi float64, name, description string) (*Parameter, error) {
	return newParameter(id, name, description, Float, lo, hi, def, nil)
}

// NewEnum declares a parameter with a fixed set of string values. Values must be unique
// ignoring case and the default must be one of them.
func NewEnum(id string, def string, values []string, name, description string) (*Parameter, error) {
	if len(values) == 0 {
		return nil, &Error{ID: id, Err: fmt.Errorf("%w: enum needs at least one value", ErrInvalidValue)}
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			return nil, &Error{ID: id, Err: fmt.Errorf("%w: enum values must be unique, got '%s' twice", ErrInvalidValue, v)}
		}
		seen[key] = struct{}{}
	}
	index := slices.IndexFunc(values, func(v string) bool { return strings.EqualFold(v, def) })
	if index < 0 {
		return nil, &Error{ID: id, Err: fmt.Errorf("%w: default '%s' is not one of %v", ErrInvalidValue, def, values)}
	}
	return newParameter(id, name, description, Enum, 0, float64(len(values)-1), float64(index), slices.Clone(values))
}

func (p *Parameter) ID() string          { return p.id }
func (p *Parameter) Name() string        { return p.name }
func (p *Parameter) Description() string { return p.description }
func (p *Parameter) Type() Type          { return p.typ }
func (p *Parameter) Range() (float64, float64) {
	return p.min, p.max
}
func (p *Parameter) Default() float64       { return p.def }
func (p *Parameter) ValueStrings() []string { return p.values }

func (p *Parameter) Value() float64 {
	return math.Float64frombits(p.value.Load())
}

// SetValue validates and stores a new value. Integer, boolean and enum parameters only
// accept whole numbers.
func (p *Parameter) SetValue(v float64) error {
	if math.IsNaN(v) {
		return &Error{ID: p.id, Err: fmt.Errorf("%w: NaN", ErrInvalidValue)}
	}
	if v < p.min || v > p.max {
		return &Error{ID: p.id, Err: fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, v, p.min, p.max)}
	}
	if p.typ != Float && v != math.Trunc(v) {
		return &Error{ID: p.id, Err: fmt.Errorf("%w: %s parameter needs a whole number, got %v", ErrInvalidValue, p.typ, v)}
	}
	p.value.Store(math.Float64bits(v))
	return nil
}

// EnumValue returns the current enum value string, or "" for other types.
func (p *Parameter) EnumValue() string {
	if p.typ != Enum {
		return ""
	}
	i := int(p.Value())
	if i < 0 || i >= len(p.values) {
		return ""
	}
	return p.values[i]
}

func (p *Parameter) Clone() *Parameter {
	c := &Parameter{
		id:          p.id,
		name:        p.name,
		description: p.description,
		typ:         p.typ,
		min:         p.min,
		max:         p.max,
		def:         p.def,
		values:      p.values,
	}
	c.value.Store(p.value.Load())
	return c
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
