package dynamo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

// Store is the flat parameter namespace of one simulation instance. Every
// parameter owns a slot in two parallel arrays: the persistent values and a
// scratch array that modules write their outputs into.
type Store struct {
	names   []string
	index   map[string]int
	values  []float64
	scratch []float64
	frozen  bool
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Define adds a parameter and returns its slot. It reports false, leaving the
// existing value untouched, when the name is already defined.
func (s *Store) Define(name string, value float64) (int, bool) {
	if slot, ok := s.index[name]; ok {
		return slot, false
	}
	if s.frozen {
		panic("dynamo: define on frozen store")
	}
	slot := len(s.values)
	s.index[name] = slot
	s.names = append(s.names, name)
	s.values = append(s.values, value)
	s.scratch = append(s.scratch, 0)
	return slot, true
}

// Freeze fixes the slot layout and seeds the scratch array from the values.
func (s *Store) Freeze() {
	s.frozen = true
	copy(s.scratch, s.values)
}

func (s *Store) Len() int { return len(s.values) }

func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Store) Slot(name string) (int, bool) {
	slot, ok := s.index[name]
	return slot, ok
}

func (s *Store) Name(slot int) string { return s.names[slot] }

// Names returns the parameter names in slot order.
func (s *Store) Names() []string { return slices.Clone(s.names) }

func (s *Store) Get(name string) (float64, bool) {
	slot, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.values[slot], true
}

func (s *Store) Set(name string, value float64) error {
	slot, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	s.values[slot] = value
	return nil
}

func (s *Store) ValueAt(slot int) float64         { return s.values[slot] }
func (s *Store) SetValueAt(slot int, v float64)   { s.values[slot] = v }
func (s *Store) ScratchAt(slot int) float64       { return s.scratch[slot] }
func (s *Store) SetScratchAt(slot int, v float64) { s.scratch[slot] = v }

// Binder returns the scoped view handed to a module constructor. Only the
// names declared in desc can be bound; a nil logger discards diagnostics.
func (s *Store) Binder(desc Descriptor, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Binder{
		store:   s,
		desc:    desc,
		inputs:  make(map[string]struct{}, len(desc.Inputs)),
		outputs: make(map[string]struct{}, len(desc.Outputs)),
		logger:  logger.With("module", desc.Name),
	}
	for _, name := range desc.Inputs {
		b.inputs[name] = struct{}{}
	}
	for _, name := range desc.Outputs {
		b.outputs[name] = struct{}{}
	}
	return b
}

// Binder resolves a module's declared inputs and outputs to store slots.
// Reads are allowed for declared inputs and writes for declared outputs only.
type Binder struct {
	store   *Store
	desc    Descriptor
	inputs  map[string]struct{}
	outputs map[string]struct{}
	logger  *slog.Logger
	errs    []error
}

func (b *Binder) Logger() *slog.Logger { return b.logger }

func (b *Binder) Input(name string) Input {
	if _, ok := b.inputs[name]; !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: input %q of module %q", ErrUndeclaredBinding, name, b.desc.Name))
		return Input{slot: -1}
	}
	slot, ok := b.store.Slot(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrUnknownParameter, name))
		return Input{slot: -1}
	}
	return Input{store: b.store, slot: slot}
}

func (b *Binder) Output(name string) Output {
	if _, ok := b.outputs[name]; !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: output %q of module %q", ErrUndeclaredBinding, name, b.desc.Name))
		return Output{slot: -1}
	}
	slot, ok := b.store.Slot(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrUnknownParameter, name))
		return Output{slot: -1}
	}
	return Output{store: b.store, slot: slot}
}

// Err reports every binding failure seen so far.
func (b *Binder) Err() error { return errors.Join(b.errs...) }

// Input is a read handle on one parameter.
type Input struct {
	store *Store
	slot  int
}

func (i Input) Get() float64 { return i.store.values[i.slot] }

// Output is a write handle on one scratch slot. Steady state outputs are
// copied into the store after the module runs; derivative outputs are
// collected as rates.
type Output struct {
	store *Store
	slot  int
}

func (o Output) Set(v float64) { o.store.scratch[o.slot] = v }
