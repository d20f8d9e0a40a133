package sigil_test

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/symfold/sigil"
)

// evalSolver is a concrete adapter used by the core tests: terms carry their
// folded values, so lowered expressions can be read back without an SMT
// library behind them. Constants created in non-eval mode stay symbolic and
// poison every value derived from them.
type evalSolver struct{}

var errNotConcrete = errors.New("evalsolver: term is not concrete")

// term is the adapter-side handle: a sort tag plus the concrete value, nil
// once anything symbolic flowed in.
type term struct {
	boolean bool
	integer bool
	size    uint
	value   *big.Int
	name    string
}

func bvTerm(value *big.Int, size uint) *term {
	return &term{size: size, value: new(big.Int).Mod(value, mask2n(size))}
}

func boolTerm(b bool) *term {
	v := big.NewInt(0)
	if b {
		v = big.NewInt(1)
	}
	return &term{boolean: true, value: v}
}

func mask2n(size uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), size)
}

func toSigned(v *big.Int, size uint) *big.Int {
	if v.Bit(int(size)-1) == 0 {
		return new(big.Int).Set(v)
	}
	return new(big.Int).Sub(v, mask2n(size))
}

func (s *evalSolver) arg(t sigil.Term) (*term, error) {
	x, ok := t.(*term)
	if !ok {
		return nil, fmt.Errorf("evalsolver: foreign term: %T", t)
	}
	return x, nil
}

func (s *evalSolver) BvNumeral(value *big.Int, size uint) (sigil.Term, error) {
	return bvTerm(value, size), nil
}

func (s *evalSolver) IntNumeral(value *big.Int) (sigil.Term, error) {
	return &term{integer: true, value: new(big.Int).Set(value)}, nil
}

func (s *evalSolver) BvConst(name string, size uint) (sigil.Term, error) {
	return &term{size: size, name: name}, nil
}

// bvBinary folds a two-operand bit-vector operator, or yields a symbolic
// term of the given width if either side is symbolic.
func (s *evalSolver) bvBinary(a, b sigil.Term, fn func(x, y *big.Int, size uint) *big.Int) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	if x.value == nil || y.value == nil {
		return &term{size: x.size}, nil
	}
	return bvTerm(fn(x.value, y.value, x.size), x.size), nil
}

// bvCompare folds a comparison into a boolean term.
func (s *evalSolver) bvCompare(a, b sigil.Term, fn func(x, y *big.Int, size uint) bool) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	if x.value == nil || y.value == nil {
		return &term{boolean: true}, nil
	}
	return boolTerm(fn(x.value, y.value, x.size)), nil
}

func (s *evalSolver) Bvadd(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).Add(x, y) })
}

func (s *evalSolver) Bvsub(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).Sub(x, y) })
}

func (s *evalSolver) Bvmul(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).Mul(x, y) })
}

func (s *evalSolver) Bvudiv(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		if y.Sign() == 0 {
			return new(big.Int).Sub(mask2n(size), big.NewInt(1))
		}
		return new(big.Int).Quo(x, y)
	})
}

func (s *evalSolver) Bvsdiv(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		sx, sy := toSigned(x, size), toSigned(y, size)
		if sy.Sign() == 0 {
			return big.NewInt(-1)
		}
		return new(big.Int).Quo(sx, sy)
	})
}

func (s *evalSolver) Bvurem(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		if y.Sign() == 0 {
			return new(big.Int).Set(x)
		}
		return new(big.Int).Rem(x, y)
	})
}

func (s *evalSolver) Bvsrem(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		sx, sy := toSigned(x, size), toSigned(y, size)
		if sy.Sign() == 0 {
			return sx
		}
		return new(big.Int).Rem(sx, sy)
	})
}

func (s *evalSolver) Bvsmod(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		sx, sy := toSigned(x, size), toSigned(y, size)
		if sy.Sign() == 0 {
			return sx
		}
		r := new(big.Int).Rem(sx, sy)
		if r.Sign() != 0 && r.Sign() != sy.Sign() {
			r.Add(r, sy)
		}
		return r
	})
}

func (s *evalSolver) Bvand(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).And(x, y) })
}

func (s *evalSolver) Bvor(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).Or(x, y) })
}

func (s *evalSolver) Bvxor(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int { return new(big.Int).Xor(x, y) })
}

func (s *evalSolver) Bvnand(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		v := new(big.Int).And(x, y)
		return v.Sub(new(big.Int).Sub(mask2n(size), big.NewInt(1)), v)
	})
}

func (s *evalSolver) Bvnor(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		v := new(big.Int).Or(x, y)
		return v.Sub(new(big.Int).Sub(mask2n(size), big.NewInt(1)), v)
	})
}

func (s *evalSolver) Bvxnor(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		v := new(big.Int).Xor(x, y)
		return v.Sub(new(big.Int).Sub(mask2n(size), big.NewInt(1)), v)
	})
}

func (s *evalSolver) Bvshl(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		if y.Cmp(big.NewInt(int64(size))) >= 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Lsh(x, uint(y.Uint64()))
	})
}

func (s *evalSolver) Bvlshr(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		if y.Cmp(big.NewInt(int64(size))) >= 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Rsh(x, uint(y.Uint64()))
	})
}

func (s *evalSolver) Bvashr(a, b sigil.Term) (sigil.Term, error) {
	return s.bvBinary(a, b, func(x, y *big.Int, size uint) *big.Int {
		sx := toSigned(x, size)
		n := uint(size)
		if y.Cmp(big.NewInt(int64(size))) < 0 {
			n = uint(y.Uint64())
		}
		return new(big.Int).Rsh(sx, n)
	})
}

func (s *evalSolver) Bvult(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) < 0 })
}

func (s *evalSolver) Bvule(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) <= 0 })
}

func (s *evalSolver) Bvugt(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) > 0 })
}

func (s *evalSolver) Bvuge(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) >= 0 })
}

func (s *evalSolver) Bvslt(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return toSigned(x, size).Cmp(toSigned(y, size)) < 0 })
}

func (s *evalSolver) Bvsle(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return toSigned(x, size).Cmp(toSigned(y, size)) <= 0 })
}

func (s *evalSolver) Bvsgt(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return toSigned(x, size).Cmp(toSigned(y, size)) > 0 })
}

func (s *evalSolver) Bvsge(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return toSigned(x, size).Cmp(toSigned(y, size)) >= 0 })
}

func (s *evalSolver) Eq(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) == 0 })
}

func (s *evalSolver) Distinct(a, b sigil.Term) (sigil.Term, error) {
	return s.bvCompare(a, b, func(x, y *big.Int, size uint) bool { return x.Cmp(y) != 0 })
}

func (s *evalSolver) Bvneg(a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{size: x.size}, nil
	}
	return bvTerm(new(big.Int).Neg(x.value), x.size), nil
}

func (s *evalSolver) Bvnot(a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{size: x.size}, nil
	}
	all := new(big.Int).Sub(mask2n(x.size), big.NewInt(1))
	return bvTerm(all.Sub(all, x.value), x.size), nil
}

func (s *evalSolver) Concat(a, b sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	size := x.size + y.size
	if x.value == nil || y.value == nil {
		return &term{size: size}, nil
	}
	v := new(big.Int).Lsh(x.value, y.size)
	return bvTerm(v.Or(v, y.value), size), nil
}

func (s *evalSolver) Extract(hi, lo uint, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	size := hi - lo + 1
	if x.value == nil {
		return &term{size: size}, nil
	}
	return bvTerm(new(big.Int).Rsh(x.value, lo), size), nil
}

func (s *evalSolver) Ite(cond, then, othw sigil.Term) (sigil.Term, error) {
	c, err := s.arg(cond)
	if err != nil {
		return nil, err
	}
	x, err := s.arg(then)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(othw)
	if err != nil {
		return nil, err
	}
	if c.value == nil {
		return &term{size: x.size, boolean: x.boolean}, nil
	}
	if c.value.Sign() != 0 {
		return x, nil
	}
	return y, nil
}

func (s *evalSolver) ZeroExtend(n uint, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{size: x.size + n}, nil
	}
	return bvTerm(x.value, x.size+n), nil
}

func (s *evalSolver) SignExtend(n uint, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{size: x.size + n}, nil
	}
	return bvTerm(toSigned(x.value, x.size), x.size+n), nil
}

func (s *evalSolver) RotateLeft(n uint, a sigil.Term) (sigil.Term, error) {
	return s.rotate(n, a, true)
}

func (s *evalSolver) RotateRight(n uint, a sigil.Term) (sigil.Term, error) {
	return s.rotate(n, a, false)
}

func (s *evalSolver) rotate(n uint, a sigil.Term, left bool) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{size: x.size}, nil
	}
	n %= x.size
	if !left {
		n = x.size - n
	}
	hi := new(big.Int).Lsh(x.value, n)
	lo := new(big.Int).Rsh(x.value, x.size-n)
	return bvTerm(hi.Or(hi, lo), x.size), nil
}

func (s *evalSolver) boolBinary(a, b sigil.Term, fn func(x, y bool) bool) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	if x.value == nil || y.value == nil {
		return &term{boolean: true}, nil
	}
	return boolTerm(fn(x.value.Sign() != 0, y.value.Sign() != 0)), nil
}

func (s *evalSolver) And(a, b sigil.Term) (sigil.Term, error) {
	return s.boolBinary(a, b, func(x, y bool) bool { return x && y })
}

func (s *evalSolver) Or(a, b sigil.Term) (sigil.Term, error) {
	return s.boolBinary(a, b, func(x, y bool) bool { return x || y })
}

func (s *evalSolver) Not(a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return &term{boolean: true}, nil
	}
	return boolTerm(x.value.Sign() == 0), nil
}

func (s *evalSolver) IsBool(a sigil.Term) bool {
	x, err := s.arg(a)
	if err != nil {
		return false
	}
	return x.boolean
}

func (s *evalSolver) Simplify(a sigil.Term) (sigil.Term, error) {
	return a, nil
}

func (s *evalSolver) BvValue(a sigil.Term) (*big.Int, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	if x.value == nil {
		return nil, errNotConcrete
	}
	return new(big.Int).Set(x.value), nil
}

// countingSolver wraps another solver and counts the Bvadd and Bvmul
// applications that reach it, which is how the tests observe translator
// sharing. Other operators pass through uncounted.
type countingSolver struct {
	sigil.Solver
	ops int
}

func (s *countingSolver) Bvadd(a, b sigil.Term) (sigil.Term, error) {
	s.ops++
	return s.Solver.Bvadd(a, b)
}

func (s *countingSolver) Bvmul(a, b sigil.Term) (sigil.Term, error) {
	s.ops++
	return s.Solver.Bvmul(a, b)
}

// mapEvaluator concretizes variables from a fixed table.
type mapEvaluator map[uint64]*big.Int

func (m mapEvaluator) Evaluate(varID uint64) *big.Int {
	return m[varID]
}
