// Package z3 implements the sigil solver adapter on top of the Z3 theorem
// prover. It is the only place where Z3 types appear; the core hands opaque
// terms back and forth without inspecting them.
package z3

import (
	"fmt"
	"math/big"
	"unsafe"

	"github.com/symfold/sigil"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure solver implements interface.
var _ sigil.Solver = (*Solver)(nil)

// Solver adapts a Z3 context to the sigil.Solver interface. Z3 owns the
// lifetime of every term it hands out; deleting the context releases them
// all, so an aborted conversion has nothing to retract.
type Solver struct {
	raw C.Z3_context
}

// NewSolver returns a solver backed by a fresh Z3 context.
func NewSolver() *Solver {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Solver{raw: raw}
}

// Close deletes the underlying Z3 context and every term created from it.
func (s *Solver) Close() error {
	C.Z3_del_context(s.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if the last call
// was successful.
func (s *Solver) err(op string) error {
	if code := C.Z3_get_error_code(s.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(s.raw, code))}
	}
	return nil
}

// arg unwraps a term produced by this adapter.
func (s *Solver) arg(t sigil.Term) (C.Z3_ast, error) {
	ast, ok := t.(C.Z3_ast)
	if !ok {
		return nil, &Error{Op: "arg", Message: fmt.Sprintf("foreign term: %T", t)}
	}
	return ast, nil
}

// BvNumeral creates a bit-vector numeral of the given width.
func (s *Solver) BvNumeral(value *big.Int, size uint) (sigil.Term, error) {
	sort := C.Z3_mk_bv_sort(s.raw, C.uint(size))
	if err := s.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}
	cstr := C.CString(value.String())
	defer C.free(unsafe.Pointer(cstr))
	return C.Z3_mk_numeral(s.raw, cstr, sort), s.err("Z3_mk_numeral")
}

// IntNumeral creates an integer numeral. Integer terms parameterize
// operators expecting integer arguments and are never bit-vector operands.
func (s *Solver) IntNumeral(value *big.Int) (sigil.Term, error) {
	sort := C.Z3_mk_int_sort(s.raw)
	if err := s.err("Z3_mk_int_sort"); err != nil {
		return nil, err
	}
	cstr := C.CString(value.String())
	defer C.free(unsafe.Pointer(cstr))
	return C.Z3_mk_numeral(s.raw, cstr, sort), s.err("Z3_mk_numeral")
}

// BvConst creates a fresh bit-vector constant named name.
func (s *Solver) BvConst(name string, size uint) (sigil.Term, error) {
	sort := C.Z3_mk_bv_sort(s.raw, C.uint(size))
	if err := s.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(s.raw, cname)
	if err := s.err("Z3_mk_string_symbol"); err != nil {
		return nil, err
	}
	return C.Z3_mk_const(s.raw, symbol, sort), s.err("Z3_mk_const")
}

// binary applies a two-operand Z3 builder to a and b.
func (s *Solver) binary(op string, fn func(C.Z3_context, C.Z3_ast, C.Z3_ast) C.Z3_ast, a, b sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	return fn(s.raw, x, y), s.err(op)
}

// unary applies a one-operand Z3 builder to a.
func (s *Solver) unary(op string, fn func(C.Z3_context, C.Z3_ast) C.Z3_ast, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	return fn(s.raw, x), s.err(op)
}

// indexed applies a Z3 builder taking a leading unsigned parameter.
func (s *Solver) indexed(op string, fn func(C.Z3_context, C.uint, C.Z3_ast) C.Z3_ast, n uint, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	return fn(s.raw, C.uint(n), x), s.err(op)
}

func (s *Solver) Bvadd(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvadd", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvadd(c, x, y) }, a, b)
}

func (s *Solver) Bvsub(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsub", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsub(c, x, y) }, a, b)
}

func (s *Solver) Bvmul(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvmul", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvmul(c, x, y) }, a, b)
}

func (s *Solver) Bvudiv(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvudiv", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvudiv(c, x, y) }, a, b)
}

func (s *Solver) Bvsdiv(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsdiv", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsdiv(c, x, y) }, a, b)
}

func (s *Solver) Bvurem(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvurem", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvurem(c, x, y) }, a, b)
}

func (s *Solver) Bvsrem(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsrem", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsrem(c, x, y) }, a, b)
}

func (s *Solver) Bvsmod(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsmod", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsmod(c, x, y) }, a, b)
}

func (s *Solver) Bvand(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvand", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvand(c, x, y) }, a, b)
}

func (s *Solver) Bvor(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvor", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvor(c, x, y) }, a, b)
}

func (s *Solver) Bvxor(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvxor", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvxor(c, x, y) }, a, b)
}

func (s *Solver) Bvnand(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvnand", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvnand(c, x, y) }, a, b)
}

func (s *Solver) Bvnor(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvnor", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvnor(c, x, y) }, a, b)
}

func (s *Solver) Bvxnor(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvxnor", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvxnor(c, x, y) }, a, b)
}

func (s *Solver) Bvshl(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvshl", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvshl(c, x, y) }, a, b)
}

func (s *Solver) Bvlshr(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvlshr", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvlshr(c, x, y) }, a, b)
}

func (s *Solver) Bvashr(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvashr", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvashr(c, x, y) }, a, b)
}

func (s *Solver) Bvult(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvult", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvult(c, x, y) }, a, b)
}

func (s *Solver) Bvule(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvule", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvule(c, x, y) }, a, b)
}

func (s *Solver) Bvugt(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvugt", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvugt(c, x, y) }, a, b)
}

func (s *Solver) Bvuge(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvuge", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvuge(c, x, y) }, a, b)
}

func (s *Solver) Bvslt(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvslt", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvslt(c, x, y) }, a, b)
}

func (s *Solver) Bvsle(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsle", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsle(c, x, y) }, a, b)
}

func (s *Solver) Bvsgt(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsgt", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsgt(c, x, y) }, a, b)
}

func (s *Solver) Bvsge(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_bvsge", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvsge(c, x, y) }, a, b)
}

func (s *Solver) Eq(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_eq", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_eq(c, x, y) }, a, b)
}

// Distinct returns the distinct predicate over the two operands.
func (s *Solver) Distinct(a, b sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	args := [2]C.Z3_ast{x, y}
	return C.Z3_mk_distinct(s.raw, 2, &args[0]), s.err("Z3_mk_distinct")
}

func (s *Solver) Bvneg(a sigil.Term) (sigil.Term, error) {
	return s.unary("Z3_mk_bvneg", func(c C.Z3_context, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvneg(c, x) }, a)
}

func (s *Solver) Bvnot(a sigil.Term) (sigil.Term, error) {
	return s.unary("Z3_mk_bvnot", func(c C.Z3_context, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_bvnot(c, x) }, a)
}

// Concat concatenates a and b, a most significant.
func (s *Solver) Concat(a, b sigil.Term) (sigil.Term, error) {
	return s.binary("Z3_mk_concat", func(c C.Z3_context, x, y C.Z3_ast) C.Z3_ast { return C.Z3_mk_concat(c, x, y) }, a, b)
}

// Extract returns bits hi down to lo of a, inclusive.
func (s *Solver) Extract(hi, lo uint, a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_extract(s.raw, C.uint(hi), C.uint(lo), x), s.err("Z3_mk_extract")
}

// Ite returns the if-then-else over cond.
func (s *Solver) Ite(cond, then, othw sigil.Term) (sigil.Term, error) {
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
	return C.Z3_mk_ite(s.raw, c, x, y), s.err("Z3_mk_ite")
}

func (s *Solver) ZeroExtend(n uint, a sigil.Term) (sigil.Term, error) {
	return s.indexed("Z3_mk_zero_ext", func(c C.Z3_context, i C.uint, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_zero_ext(c, i, x) }, n, a)
}

func (s *Solver) SignExtend(n uint, a sigil.Term) (sigil.Term, error) {
	return s.indexed("Z3_mk_sign_ext", func(c C.Z3_context, i C.uint, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_sign_ext(c, i, x) }, n, a)
}

func (s *Solver) RotateLeft(n uint, a sigil.Term) (sigil.Term, error) {
	return s.indexed("Z3_mk_rotate_left", func(c C.Z3_context, i C.uint, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_rotate_left(c, i, x) }, n, a)
}

func (s *Solver) RotateRight(n uint, a sigil.Term) (sigil.Term, error) {
	return s.indexed("Z3_mk_rotate_right", func(c C.Z3_context, i C.uint, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_rotate_right(c, i, x) }, n, a)
}

// And returns the conjunction of a and b.
func (s *Solver) And(a, b sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	args := [2]C.Z3_ast{x, y}
	return C.Z3_mk_and(s.raw, 2, &args[0]), s.err("Z3_mk_and")
}

// Or returns the disjunction of a and b.
func (s *Solver) Or(a, b sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	y, err := s.arg(b)
	if err != nil {
		return nil, err
	}
	args := [2]C.Z3_ast{x, y}
	return C.Z3_mk_or(s.raw, 2, &args[0]), s.err("Z3_mk_or")
}

func (s *Solver) Not(a sigil.Term) (sigil.Term, error) {
	return s.unary("Z3_mk_not", func(c C.Z3_context, x C.Z3_ast) C.Z3_ast { return C.Z3_mk_not(c, x) }, a)
}

// IsBool reports whether a carries boolean sort.
func (s *Solver) IsBool(a sigil.Term) bool {
	x, err := s.arg(a)
	if err != nil {
		return false
	}
	return C.Z3_get_sort_kind(s.raw, C.Z3_get_sort(s.raw, x)) == C.Z3_BOOL_SORT
}

// Simplify rewrites a into Z3's simplified form. Concrete expressions reduce
// to numerals.
func (s *Solver) Simplify(a sigil.Term) (sigil.Term, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	return C.Z3_simplify(s.raw, x), s.err("Z3_simplify")
}

// BvValue reads the concrete value of a numeral term.
func (s *Solver) BvValue(a sigil.Term) (*big.Int, error) {
	x, err := s.arg(a)
	if err != nil {
		return nil, err
	}
	str := C.GoString(C.Z3_get_numeral_string(s.raw, x))
	if err := s.err("Z3_get_numeral_string"); err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return nil, &Error{Op: "Z3_get_numeral_string", Message: fmt.Sprintf("not a numeral: %q", str)}
	}
	return value, nil
}

// TermString renders a term in SMT-LIB form. Useful when debugging lowering.
func (s *Solver) TermString(t sigil.Term) string {
	x, err := s.arg(t)
	if err != nil {
		return err.Error()
	}
	return C.GoString(C.Z3_ast_to_string(s.raw, x))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}
