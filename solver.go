package sigil

import "math/big"

// Term is an opaque solver-side handle. Only the adapter that produced a
// term can interpret it; the core moves terms around without looking inside.
type Term interface{}

// Solver is the narrow adapter boundary over the external SMT library. The
// translator is its only caller within the core. Adapter errors propagate
// through the translator unchanged; solver-side garbage collection is the
// adapter's job, so an aborted conversion has nothing to retract.
type Solver interface {
	// Numerals and constants.
	BvNumeral(value *big.Int, size uint) (Term, error)
	IntNumeral(value *big.Int) (Term, error)
	BvConst(name string, size uint) (Term, error)

	// Two-operand bit-vector operators.
	Bvadd(a, b Term) (Term, error)
	Bvsub(a, b Term) (Term, error)
	Bvmul(a, b Term) (Term, error)
	Bvudiv(a, b Term) (Term, error)
	Bvsdiv(a, b Term) (Term, error)
	Bvurem(a, b Term) (Term, error)
	Bvsrem(a, b Term) (Term, error)
	Bvsmod(a, b Term) (Term, error)
	Bvand(a, b Term) (Term, error)
	Bvor(a, b Term) (Term, error)
	Bvxor(a, b Term) (Term, error)
	Bvnand(a, b Term) (Term, error)
	Bvnor(a, b Term) (Term, error)
	Bvxnor(a, b Term) (Term, error)
	Bvshl(a, b Term) (Term, error)
	Bvlshr(a, b Term) (Term, error)
	Bvashr(a, b Term) (Term, error)

	// Comparisons.
	Bvult(a, b Term) (Term, error)
	Bvule(a, b Term) (Term, error)
	Bvugt(a, b Term) (Term, error)
	Bvuge(a, b Term) (Term, error)
	Bvslt(a, b Term) (Term, error)
	Bvsle(a, b Term) (Term, error)
	Bvsgt(a, b Term) (Term, error)
	Bvsge(a, b Term) (Term, error)
	Eq(a, b Term) (Term, error)
	Distinct(a, b Term) (Term, error)

	// One-operand bit-vector operators.
	Bvneg(a Term) (Term, error)
	Bvnot(a Term) (Term, error)

	// Structure.
	Concat(a, b Term) (Term, error)
	Extract(hi, lo uint, a Term) (Term, error)
	Ite(cond, then, othw Term) (Term, error)
	ZeroExtend(n uint, a Term) (Term, error)
	SignExtend(n uint, a Term) (Term, error)
	RotateLeft(n uint, a Term) (Term, error)
	RotateRight(n uint, a Term) (Term, error)

	// Boolean logic.
	And(a, b Term) (Term, error)
	Or(a, b Term) (Term, error)
	Not(a Term) (Term, error)
	IsBool(a Term) bool

	// Concrete readback, used to check literal round-trips.
	Simplify(a Term) (Term, error)
	BvValue(a Term) (*big.Int, error)
}

// Evaluator concretizes variables in eval mode.
type Evaluator interface {
	// Evaluate returns the concrete value of the variable with the given id.
	Evaluate(varID uint64) *big.Int
}
