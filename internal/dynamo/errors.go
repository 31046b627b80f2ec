package dynamo

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidState indicates a state vector with invalid values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates a state vector whose length differs from the system.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrTimeOutOfRange indicates a time index outside the time-varying series.
	ErrTimeOutOfRange = errors.New("dynamo: time index outside the varying parameter series")

	// ErrUnknownParameter indicates a lookup of a name that is not in the store.
	ErrUnknownParameter = errors.New("dynamo: unknown parameter")

	// ErrUnknownModule indicates a factory lookup of an unregistered module.
	ErrUnknownModule = errors.New("dynamo: unknown module")

	// ErrUndeclaredBinding indicates a module bound a name it did not declare.
	ErrUndeclaredBinding = errors.New("dynamo: binding of undeclared name")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

type DefectKind string

const (
	DefectNoModules        DefectKind = "no_modules"
	DefectMissingParameter DefectKind = "missing_parameter"
	DefectInvalidTimestep  DefectKind = "invalid_timestep"
	DefectReservedName     DefectKind = "reserved_name"
	DefectSeriesLength     DefectKind = "series_length"
	DefectInconsistentHour DefectKind = "inconsistent_hour"
	DefectDuplicateParam   DefectKind = "duplicate_parameter"
	DefectUnknownModule    DefectKind = "unknown_module"
	DefectDuplicateModule  DefectKind = "duplicate_module"
	DefectUndefinedInput   DefectKind = "undefined_input"
	DefectDuplicateOutput  DefectKind = "duplicate_output"
	DefectIllegalOutput    DefectKind = "illegal_output"
	DefectCreateFailed     DefectKind = "create_failed"
	DefectMischaracterized DefectKind = "mischaracterized_module"
	DefectModuleFailed     DefectKind = "module_failed"
)

// Defect is one problem found while building a system.
type Defect struct {
	Kind      DefectKind
	Parameter string
	Module    string
	Source    string
	Detail    string
}

func (d Defect) String() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.Parameter != "" {
		fmt.Fprintf(&b, ": parameter %q", d.Parameter)
	}
	if d.Source != "" {
		fmt.Fprintf(&b, " from the %s", d.Source)
	}
	if d.Module != "" {
		fmt.Fprintf(&b, " (module %q)", d.Module)
	}
	if d.Detail != "" {
		b.WriteString(": ")
		b.WriteString(d.Detail)
	}
	return b.String()
}

// BuildError aggregates every defect found while building a system.
type BuildError struct {
	Defects []Defect
}

func (e *BuildError) Error() string {
	lines := make([]string, len(e.Defects))
	for i, d := range e.Defects {
		lines[i] = d.String()
	}
	return fmt.Sprintf("system build failed:\n- %s", strings.Join(lines, "\n- "))
}

// Has reports whether at least one defect of kind k was recorded.
func (e *BuildError) Has(k DefectKind) bool {
	for _, d := range e.Defects {
		if d.Kind == k {
			return true
		}
	}
	return false
}

// Of returns the defects of kind k.
func (e *BuildError) Of(k DefectKind) []Defect {
	var out []Defect
	for _, d := range e.Defects {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// ModuleError wraps an error raised inside a module's Run.
type ModuleError struct {
	Module  string
	Kind    Kind
	Wrapped error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s module %q: %v", e.Kind, e.Module, e.Wrapped)
}

func (e *ModuleError) Unwrap() error {
	return e.Wrapped
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
