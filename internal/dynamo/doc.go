// Package dynamo provides core primitives for module-graph simulations.
//
// A simulation is a set of named scalar parameters shared by a list of
// interchangeable modules:
//
//   - [State]: vector of state variable values, ordered by the system
//   - [Module]: unit of computation, either steady state or derivative
//   - [Factory]: name based lookup of module metadata and constructors
//   - [Store]: the flat parameter namespace of one simulation instance
//   - [Binder]: the scoped view a module receives when it is created
//   - [System]: what an outer [Integrator] steps forward in time
//
// # Example
//
//	b := store.Binder(desc, logger)
//	in := b.Input("Leaf")
//	out := b.Output("total_biomass")
//	out.Set(in.Get() * 2)
//
// # Thread Safety
//
// A Store and every handle bound to it belong to one simulation instance and
// are NOT safe for concurrent use. Exactly one evaluation is in flight at a
// time.
package dynamo
