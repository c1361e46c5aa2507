package model

import "github.com/epifit-xyz/go-epifit/solver"

// Variant identifies a compartment model from the closed set of supported
// variants. Each variant carries a fixed schema: parameter names,
// compartment names, and the derivative function. Keeping the set closed
// prevents shape mismatches from propagating into the solver.
type Variant int

const (
	// SIR is the classic susceptible-infected-removed model with
	// parameters alpha (infection rate) and beta (recovery rate).
	SIR Variant = iota

	// SIRX extends SIR with a confirmed/quarantined compartment X and
	// containment parameters, after Maier & Brockmann (2020). Parameters:
	// alpha (infection), beta (recovery), kappa (general containment),
	// kappa0 (contact tracing removal of susceptibles and infected), and
	// ratio (unidentified-to-confirmed scaling applied to the infected
	// initial condition when the confirmed count is observed).
	SIRX
)

// Schema describes the fixed shape of a variant: names and sizes known at
// construction time.
type Schema struct {
	Name         string
	Params       []string
	Compartments []string

	// deriv binds a parameter vector and total population into the
	// vectorized derivative function consumed by the solver.
	deriv func(params []float64, n float64) solver.Func

	// adjust optionally rewrites the initial condition from the parameter
	// vector before a fresh integration (used by SIR-X's ratio parameter).
	adjust func(params, initial []float64) []float64
}

// ParamCount returns the number of parameters in the variant's schema.
func (s *Schema) ParamCount() int { return len(s.Params) }

// CompartmentCount returns the number of compartments in the schema.
func (s *Schema) CompartmentCount() int { return len(s.Compartments) }

// ParamIndex returns the index of a named parameter, or -1.
func (s *Schema) ParamIndex(name string) int {
	for i, p := range s.Params {
		if p == name {
			return i
		}
	}
	return -1
}

// CompartmentIndex returns the index of a named compartment, or -1.
func (s *Schema) CompartmentIndex(name string) int {
	for i, c := range s.Compartments {
		if c == name {
			return i
		}
	}
	return -1
}

var sirSchema = &Schema{
	Name:         "SIR",
	Params:       []string{"alpha", "beta"},
	Compartments: []string{"S", "I", "R"},
	deriv:        sirDeriv,
}

var sirxSchema = &Schema{
	Name:         "SIR-X",
	Params:       []string{"alpha", "beta", "kappa", "kappa0", "ratio"},
	Compartments: []string{"S", "I", "R", "X"},
	deriv:        sirxDeriv,
	adjust:       sirxAdjust,
}

// Schema returns the variant's schema. Unknown variants return nil.
func (v Variant) Schema() *Schema {
	switch v {
	case SIR:
		return sirSchema
	case SIRX:
		return sirxSchema
	}
	return nil
}

// String returns the variant name.
func (v Variant) String() string {
	if s := v.Schema(); s != nil {
		return s.Name
	}
	return "unknown"
}

// VariantByName resolves "sir" or "sir-x"/"sirx" (case-sensitive lowercase)
// to a Variant. The boolean reports whether the name was recognized.
func VariantByName(name string) (Variant, bool) {
	switch name {
	case "sir":
		return SIR, true
	case "sirx", "sir-x":
		return SIRX, true
	}
	return 0, false
}

// sirDeriv builds the SIR right-hand side. Mass-action infection is scaled
// by the total population so that alpha stays an O(1) per-day rate:
//
//	dS/dt = -alpha*S*I/N
//	dI/dt =  alpha*S*I/N - beta*I
//	dR/dt =  beta*I
func sirDeriv(params []float64, n float64) solver.Func {
	alpha, beta := params[0], params[1]
	return func(_ float64, u, du []float64) {
		inf := alpha * u[0] * u[1] / n
		rec := beta * u[1]
		du[0] = -inf
		du[1] = inf - rec
		du[2] = rec
	}
}

// sirxDeriv builds the SIR-X right-hand side (Maier & Brockmann 2020):
//
//	dS/dt = -alpha*S*I/N - kappa0*S
//	dI/dt =  alpha*S*I/N - beta*I - kappa0*I - kappa*I
//	dR/dt =  beta*I + kappa0*S
//	dX/dt = (kappa + kappa0)*I
//
// The derivatives sum to zero, so total population is conserved.
func sirxDeriv(params []float64, n float64) solver.Func {
	alpha, beta, kappa, kappa0 := params[0], params[1], params[2], params[3]
	return func(_ float64, u, du []float64) {
		inf := alpha * u[0] * u[1] / n
		du[0] = -inf - kappa0*u[0]
		du[1] = inf - (beta+kappa0+kappa)*u[1]
		du[2] = beta*u[1] + kappa0*u[0]
		du[3] = (kappa + kappa0) * u[1]
	}
}

// sirxAdjust applies the testing-eligibility ratio: confirmed counts X only
// capture a fraction of ongoing infections, so a fresh run seeds the
// unobserved infected compartment at ratio*X0 when a confirmed count is
// present. The displaced mass is taken from S to keep the total fixed.
func sirxAdjust(params, initial []float64) []float64 {
	ratio := params[4]
	x0 := initial[3]
	if ratio <= 0 || x0 <= 0 {
		return initial
	}
	out := append([]float64(nil), initial...)
	i0 := ratio * x0
	delta := i0 - out[1]
	if delta > 0 && out[0] >= delta {
		out[1] = i0
		out[0] -= delta
	}
	return out
}
