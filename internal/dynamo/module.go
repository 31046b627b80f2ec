package dynamo

// Kind separates modules that compute new parameters from modules that
// produce rates of change for state variables.
type Kind int

const (
	SteadyState Kind = iota
	Derivative
)

func (k Kind) IsDerivative() bool { return k == Derivative }

func (k Kind) String() string {
	switch k {
	case SteadyState:
		return "steady state"
	case Derivative:
		return "derivative"
	default:
		return "unknown"
	}
}

// Descriptor is the metadata a module declares before it is instantiated.
type Descriptor struct {
	Name    string
	Inputs  []string
	Outputs []string
	Kind    Kind
}

// Module is one unit of computation. Run reads its inputs and writes its
// outputs only through the handles it obtained from its Binder.
type Module interface {
	Name() string
	Kind() Kind
	Run() error
}

// Factory looks modules up by name. Inputs, Outputs and Describe are pure
// metadata queries; Create instantiates a module bound to one store.
type Factory interface {
	Describe(name string) (Descriptor, error)
	Inputs(name string) ([]string, error)
	Outputs(name string) ([]string, error)
	Create(name string, b *Binder) (Module, error)
}
