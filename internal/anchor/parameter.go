package anchor

import (
	"fmt"
	"sort"

	"github.com/inamate/anchors/internal/observable"
)

// Kind tells who owns a parameter.
type Kind int

const (
	// Static parameters are shared by every key attached to an anchor.
	Static Kind = iota
	// Dynamic parameters are private to one key.
	Dynamic
)

func (k Kind) String() string {
	if k == Static {
		return "static"
	}
	return "dynamic"
}

// ParamType names a parameter. It is unique within an anchor.
type ParamType string

// Requirement is the type-erased form of a Descriptor, as declared by
// strategies through RequiredParameters.
type Requirement interface {
	ParamType() ParamType
	ParamKind() Kind
	IsOptional() bool

	instantiate(set *ParameterSet, listener func(ParamType)) error
	check(set *ParameterSet) error
}

// Descriptor declares a parameter: its name, owner kind, optionality, default
// value and the equality used to detect changes.
type Descriptor[T any] struct {
	Type     ParamType
	Kind     Kind
	Optional bool
	Default  func() T
	Equal    observable.Equal[T]
}

func (d Descriptor[T]) ParamType() ParamType { return d.Type }

func (d Descriptor[T]) ParamKind() Kind { return d.Kind }

func (d Descriptor[T]) IsOptional() bool { return d.Optional }

func (d Descriptor[T]) instantiate(set *ParameterSet, listener func(ParamType)) error {
	_, err := ensure(set, d, listener)
	return err
}

// check fails when set stores a parameter of another value type under d.Type.
func (d Descriptor[T]) check(set *ParameterSet) error {
	_, _, err := lookup(set, d)
	return err
}

func (d Descriptor[T]) defaultValue() T {
	if d.Default == nil {
		var zero T
		return zero
	}
	return d.Default()
}

func (d Descriptor[T]) equal(a, b T) bool {
	if d.Equal == nil {
		return observable.DeepEqual(a, b)
	}
	return d.Equal(a, b)
}

// Parameter is one typed computation input. Its value is either set directly
// or follows a bound observable source; every effective change notifies the
// owning anchor.
type Parameter[T any] struct {
	desc  Descriptor[T]
	value T

	source   *observable.Value[T]
	sourceH  *observable.Handle
	listener func(ParamType)
}

func newParameter[T any](d Descriptor[T], listener func(ParamType)) *Parameter[T] {
	return &Parameter[T]{desc: d, value: d.defaultValue(), listener: listener}
}

func (p *Parameter[T]) Type() ParamType { return p.desc.Type }

func (p *Parameter[T]) Kind() Kind { return p.desc.Kind }

func (p *Parameter[T]) Optional() bool { return p.desc.Optional }

func (p *Parameter[T]) Get() T { return p.value }

// Set assigns v. It fails with ErrParameterBound while a source is bound.
func (p *Parameter[T]) Set(v T) error {
	if p.source != nil {
		return fmt.Errorf("set %s: %w", p.desc.Type, ErrParameterBound)
	}
	p.assign(v)
	return nil
}

// Bind makes the parameter follow src, taking its current value immediately.
// Binding to the source already bound is a no-op; binding to another source
// replaces the previous binding.
func (p *Parameter[T]) Bind(src *observable.Value[T]) {
	if src == nil || src == p.source {
		return
	}
	p.Unbind()
	p.source = src
	p.sourceH = src.Subscribe(func(_, next T) { p.assign(next) })
	p.assign(src.Get())
}

// Unbind stops following the bound source and keeps the last value.
func (p *Parameter[T]) Unbind() {
	if p.source == nil {
		return
	}
	p.sourceH.Unsubscribe()
	p.source, p.sourceH = nil, nil
}

// IsBound reports whether the parameter follows a source.
func (p *Parameter[T]) IsBound() bool { return p.source != nil }

func (p *Parameter[T]) assign(v T) {
	if p.desc.equal(p.value, v) {
		return
	}
	p.value = v
	if p.listener != nil {
		p.listener(p.desc.Type)
	}
}

// release drops the binding and the owner's listener.
func (p *Parameter[T]) release() {
	p.Unbind()
	p.listener = nil
}

// param is how a ParameterSet stores parameters of any value type.
type param interface {
	Type() ParamType
	Kind() Kind
	IsBound() bool
	release()
}

// ParameterSet holds parameters by type id. An anchor keeps one set for its
// static parameters and one per attached key for dynamic ones.
type ParameterSet struct {
	params map[ParamType]param
}

func NewParameterSet() *ParameterSet {
	return &ParameterSet{params: make(map[ParamType]param)}
}

func (s *ParameterSet) Has(t ParamType) bool {
	_, ok := s.params[t]
	return ok
}

func (s *ParameterSet) Len() int { return len(s.params) }

// Types returns the stored type ids in sorted order.
func (s *ParameterSet) Types() []ParamType {
	out := make([]ParamType, 0, len(s.params))
	for t := range s.params {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// clear releases every parameter and empties the set.
func (s *ParameterSet) clear() {
	for t, p := range s.params {
		p.release()
		delete(s.params, t)
	}
}

// lookup returns the parameter stored for d, checking its value type.
func lookup[T any](s *ParameterSet, d Descriptor[T]) (*Parameter[T], bool, error) {
	existing, ok := s.params[d.Type]
	if !ok {
		return nil, false, nil
	}
	p, ok := existing.(*Parameter[T])
	if !ok {
		return nil, true, fmt.Errorf("%w: %s holds %T", ErrParameterType, d.Type, existing)
	}
	return p, true, nil
}

// ensure returns the parameter for d, creating it with its default value when
// absent. Creation is not a change and notifies nobody.
func ensure[T any](s *ParameterSet, d Descriptor[T], listener func(ParamType)) (*Parameter[T], error) {
	p, found, err := lookup(s, d)
	if err != nil {
		return nil, err
	}
	if found {
		return p, nil
	}
	p = newParameter(d, listener)
	s.params[d.Type] = p
	return p, nil
}

// Params is the view a strategy gets for one key: the anchor's static set
// merged with the key's dynamic set.
type Params struct {
	static   *ParameterSet
	dynamic  *ParameterSet
	listener func(ParamType)
}

// NewParams builds a view over the given sets. Dynamic parameters instantiated
// through Lookup report changes to listener. Either set may be nil.
func NewParams(static, dynamic *ParameterSet, listener func(ParamType)) *Params {
	if static == nil {
		static = NewParameterSet()
	}
	if dynamic == nil {
		dynamic = NewParameterSet()
	}
	return &Params{static: static, dynamic: dynamic, listener: listener}
}

// Lookup returns the value of the parameter described by d. A missing dynamic
// parameter is created with its default value and registered; a missing
// static parameter fails with ErrMissingParameter.
func Lookup[T any](ps *Params, d Descriptor[T]) (T, error) {
	var zero T
	if d.Kind == Static {
		p, found, err := lookup(ps.static, d)
		if err != nil {
			return zero, err
		}
		if !found {
			return zero, fmt.Errorf("%w: %s", ErrMissingParameter, d.Type)
		}
		return p.Get(), nil
	}

	p, err := ensure(ps.dynamic, d, ps.listener)
	if err != nil {
		return zero, err
	}
	return p.Get(), nil
}

// LookupOptional returns the parameter's value without creating it.
func LookupOptional[T any](ps *Params, d Descriptor[T]) (T, bool) {
	set := ps.dynamic
	if d.Kind == Static {
		set = ps.static
	}
	p, found, err := lookup(set, d)
	if err != nil || !found {
		var zero T
		return zero, false
	}
	return p.Get(), true
}

// Supply provides a dynamic parameter at attach time.
type Supply interface {
	apply(set *ParameterSet, listener func(ParamType)) error
}

type supplyFunc func(set *ParameterSet, listener func(ParamType)) error

func (f supplyFunc) apply(set *ParameterSet, listener func(ParamType)) error {
	return f(set, listener)
}

// WithValue supplies a dynamic parameter with a fixed initial value.
func WithValue[T any](d Descriptor[T], v T) Supply {
	return supplyFunc(func(set *ParameterSet, listener func(ParamType)) error {
		if d.Kind != Dynamic {
			return fmt.Errorf("supply %s: %w", d.Type, ErrParameterKind)
		}
		p, err := ensure(set, d, listener)
		if err != nil {
			return err
		}
		return p.Set(v)
	})
}

// WithSource supplies a dynamic parameter bound to src.
func WithSource[T any](d Descriptor[T], src *observable.Value[T]) Supply {
	return supplyFunc(func(set *ParameterSet, listener func(ParamType)) error {
		if d.Kind != Dynamic {
			return fmt.Errorf("supply %s: %w", d.Type, ErrParameterKind)
		}
		p, err := ensure(set, d, listener)
		if err != nil {
			return err
		}
		p.Bind(src)
		return nil
	})
}
