package sigil

import (
	"math/big"

	"github.com/pkg/errors"
)

// Builder allocates nodes, validates kind-specific arity and width
// invariants, computes hashes, and records every node with its arena.
// All expression composition goes through a builder; the Node type has no
// public constructors.
type Builder struct {
	arena *Arena
}

// NewBuilder returns a builder allocating out of arena.
func NewBuilder(arena *Arena) *Builder {
	return &Builder{arena: arena}
}

// Arena returns the arena the builder records into.
func (b *Builder) Arena() *Arena { return b.arena }

// alloc finalizes a node: derives the symbolic flag, computes and caches the
// fingerprint, and records the node with the arena.
func (b *Builder) alloc(n *Node) *Node {
	n.symbolic = n.kind == VARIABLE || n.kind == REFERENCE
	for _, child := range n.children {
		if child.symbolic {
			n.symbolic = true
			break
		}
	}

	id := n.varID
	if n.kind == REFERENCE {
		id = n.exprID
	}
	n.hash = computeHash(n.kind, n.size, 1, n.value, n.name, id, n.children)

	return b.arena.Record(n)
}

// binary constructs a two-operand bit-vector node producing the operand width.
func (b *Builder) binary(kind Kind, lhs, rhs *Node) (*Node, error) {
	if lhs == nil || rhs == nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: nil operand", kind)
	}
	if lhs.size != rhs.size {
		return nil, errors.Wrapf(ErrMalformed, "%s: operand width mismatch: %d != %d", kind, lhs.size, rhs.size)
	}
	return b.alloc(&Node{kind: kind, size: lhs.size, children: []*Node{lhs, rhs}}), nil
}

// compare constructs a two-operand node producing a boolean.
func (b *Builder) compare(kind Kind, lhs, rhs *Node) (*Node, error) {
	if lhs == nil || rhs == nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: nil operand", kind)
	}
	if lhs.size != rhs.size {
		return nil, errors.Wrapf(ErrMalformed, "%s: operand width mismatch: %d != %d", kind, lhs.size, rhs.size)
	}
	return b.alloc(&Node{kind: kind, size: WidthBool, children: []*Node{lhs, rhs}}), nil
}

// unary constructs a one-operand bit-vector node producing the operand width.
func (b *Builder) unary(kind Kind, src *Node) (*Node, error) {
	if src == nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: nil operand", kind)
	}
	return b.alloc(&Node{kind: kind, size: src.size, children: []*Node{src}}), nil
}

// rotate constructs a BVROL/BVROR node over a DECIMAL amount child.
func (b *Builder) rotate(kind Kind, amount uint, src *Node) (*Node, error) {
	if src == nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: nil operand", kind)
	}
	dec, err := b.Decimal(new(big.Int).SetUint64(uint64(amount)))
	if err != nil {
		return nil, err
	}
	return b.alloc(&Node{kind: kind, size: src.size, children: []*Node{dec, src}}), nil
}

// logical constructs an n-ary boolean connective.
func (b *Builder) logical(kind Kind, children []*Node) (*Node, error) {
	if len(children) < 2 {
		return nil, errors.Wrapf(ErrMalformed, "%s: requires at least 2 operands, got %d", kind, len(children))
	}
	for i, child := range children {
		if child == nil {
			return nil, errors.Wrapf(ErrMalformed, "%s: nil operand %d", kind, i)
		}
		if child.size != WidthBool {
			return nil, errors.Wrapf(ErrMalformed, "%s: operand %d is not boolean: width %d", kind, i, child.size)
		}
	}
	cs := make([]*Node, len(children))
	copy(cs, children)
	return b.alloc(&Node{kind: kind, size: WidthBool, children: cs}), nil
}

// Bvadd returns lhs + rhs.
func (b *Builder) Bvadd(lhs, rhs *Node) (*Node, error) { return b.binary(BVADD, lhs, rhs) }

// Bvsub returns lhs - rhs.
func (b *Builder) Bvsub(lhs, rhs *Node) (*Node, error) { return b.binary(BVSUB, lhs, rhs) }

// Bvmul returns lhs * rhs.
func (b *Builder) Bvmul(lhs, rhs *Node) (*Node, error) { return b.binary(BVMUL, lhs, rhs) }

// Bvudiv returns the unsigned quotient of lhs and rhs.
func (b *Builder) Bvudiv(lhs, rhs *Node) (*Node, error) { return b.binary(BVUDIV, lhs, rhs) }

// Bvsdiv returns the signed quotient of lhs and rhs.
func (b *Builder) Bvsdiv(lhs, rhs *Node) (*Node, error) { return b.binary(BVSDIV, lhs, rhs) }

// Bvurem returns the unsigned remainder of lhs by rhs.
func (b *Builder) Bvurem(lhs, rhs *Node) (*Node, error) { return b.binary(BVUREM, lhs, rhs) }

// Bvsrem returns the signed remainder of lhs by rhs, sign following lhs.
func (b *Builder) Bvsrem(lhs, rhs *Node) (*Node, error) { return b.binary(BVSREM, lhs, rhs) }

// Bvsmod returns the signed modulus of lhs by rhs, sign following rhs.
func (b *Builder) Bvsmod(lhs, rhs *Node) (*Node, error) { return b.binary(BVSMOD, lhs, rhs) }

// Bvand returns the bitwise AND of lhs and rhs.
func (b *Builder) Bvand(lhs, rhs *Node) (*Node, error) { return b.binary(BVAND, lhs, rhs) }

// Bvor returns the bitwise OR of lhs and rhs.
func (b *Builder) Bvor(lhs, rhs *Node) (*Node, error) { return b.binary(BVOR, lhs, rhs) }

// Bvxor returns the bitwise XOR of lhs and rhs.
func (b *Builder) Bvxor(lhs, rhs *Node) (*Node, error) { return b.binary(BVXOR, lhs, rhs) }

// Bvnand returns the bitwise NAND of lhs and rhs.
func (b *Builder) Bvnand(lhs, rhs *Node) (*Node, error) { return b.binary(BVNAND, lhs, rhs) }

// Bvnor returns the bitwise NOR of lhs and rhs.
func (b *Builder) Bvnor(lhs, rhs *Node) (*Node, error) { return b.binary(BVNOR, lhs, rhs) }

// Bvxnor returns the bitwise XNOR of lhs and rhs.
func (b *Builder) Bvxnor(lhs, rhs *Node) (*Node, error) { return b.binary(BVXNOR, lhs, rhs) }

// Bvshl returns lhs shifted left by rhs bits.
func (b *Builder) Bvshl(lhs, rhs *Node) (*Node, error) { return b.binary(BVSHL, lhs, rhs) }

// Bvlshr returns lhs logically shifted right by rhs bits.
func (b *Builder) Bvlshr(lhs, rhs *Node) (*Node, error) { return b.binary(BVLSHR, lhs, rhs) }

// Bvashr returns lhs arithmetically shifted right by rhs bits.
func (b *Builder) Bvashr(lhs, rhs *Node) (*Node, error) { return b.binary(BVASHR, lhs, rhs) }

// Bvrol returns src rotated left by amount bits.
func (b *Builder) Bvrol(amount uint, src *Node) (*Node, error) { return b.rotate(BVROL, amount, src) }

// Bvror returns src rotated right by amount bits.
func (b *Builder) Bvror(amount uint, src *Node) (*Node, error) { return b.rotate(BVROR, amount, src) }

// Bvneg returns the two's-complement negation of src.
func (b *Builder) Bvneg(src *Node) (*Node, error) { return b.unary(BVNEG, src) }

// Bvnot returns the bitwise NOT of src.
func (b *Builder) Bvnot(src *Node) (*Node, error) { return b.unary(BVNOT, src) }

// Bvult returns the unsigned less-than comparison of lhs and rhs.
func (b *Builder) Bvult(lhs, rhs *Node) (*Node, error) { return b.compare(BVULT, lhs, rhs) }

// Bvule returns the unsigned less-or-equal comparison of lhs and rhs.
func (b *Builder) Bvule(lhs, rhs *Node) (*Node, error) { return b.compare(BVULE, lhs, rhs) }

// Bvugt returns the unsigned greater-than comparison of lhs and rhs.
func (b *Builder) Bvugt(lhs, rhs *Node) (*Node, error) { return b.compare(BVUGT, lhs, rhs) }

// Bvuge returns the unsigned greater-or-equal comparison of lhs and rhs.
func (b *Builder) Bvuge(lhs, rhs *Node) (*Node, error) { return b.compare(BVUGE, lhs, rhs) }

// Bvslt returns the signed less-than comparison of lhs and rhs.
func (b *Builder) Bvslt(lhs, rhs *Node) (*Node, error) { return b.compare(BVSLT, lhs, rhs) }

// Bvsle returns the signed less-or-equal comparison of lhs and rhs.
func (b *Builder) Bvsle(lhs, rhs *Node) (*Node, error) { return b.compare(BVSLE, lhs, rhs) }

// Bvsgt returns the signed greater-than comparison of lhs and rhs.
func (b *Builder) Bvsgt(lhs, rhs *Node) (*Node, error) { return b.compare(BVSGT, lhs, rhs) }

// Bvsge returns the signed greater-or-equal comparison of lhs and rhs.
func (b *Builder) Bvsge(lhs, rhs *Node) (*Node, error) { return b.compare(BVSGE, lhs, rhs) }

// Equal returns the equality of lhs and rhs.
func (b *Builder) Equal(lhs, rhs *Node) (*Node, error) { return b.compare(EQUAL, lhs, rhs) }

// Distinct returns the inequality of lhs and rhs.
func (b *Builder) Distinct(lhs, rhs *Node) (*Node, error) { return b.compare(DISTINCT, lhs, rhs) }

// Concat concatenates two or more operands. children[0] is the most
// significant segment; the result width is the sum of the operand widths.
func (b *Builder) Concat(children ...*Node) (*Node, error) {
	if len(children) < 2 {
		return nil, errors.Wrapf(ErrMalformed, "concat: requires at least 2 operands, got %d", len(children))
	}
	var size uint
	for i, child := range children {
		if child == nil {
			return nil, errors.Wrapf(ErrMalformed, "concat: nil operand %d", i)
		}
		size += child.size
	}
	cs := make([]*Node, len(children))
	copy(cs, children)
	return b.alloc(&Node{kind: CONCAT, size: size, children: cs}), nil
}

// Extract returns bits hi down to lo of src, inclusive.
func (b *Builder) Extract(hi, lo uint, src *Node) (*Node, error) {
	if src == nil {
		return nil, errors.Wrap(ErrMalformed, "extract: nil operand")
	}
	if hi < lo {
		return nil, errors.Wrapf(ErrMalformed, "extract: high %d below low %d", hi, lo)
	}
	if hi >= src.size {
		return nil, errors.Wrapf(ErrMalformed, "extract: high %d out of bounds for width %d", hi, src.size)
	}
	hiDec, err := b.Decimal(new(big.Int).SetUint64(uint64(hi)))
	if err != nil {
		return nil, err
	}
	loDec, err := b.Decimal(new(big.Int).SetUint64(uint64(lo)))
	if err != nil {
		return nil, err
	}
	return b.alloc(&Node{kind: EXTRACT, size: hi - lo + 1, children: []*Node{hiDec, loDec, src}}), nil
}

// Zx zero-extends src by ext bits.
func (b *Builder) Zx(ext uint, src *Node) (*Node, error) { return b.extend(ZX, ext, src) }

// Sx sign-extends src by ext bits.
func (b *Builder) Sx(ext uint, src *Node) (*Node, error) { return b.extend(SX, ext, src) }

func (b *Builder) extend(kind Kind, ext uint, src *Node) (*Node, error) {
	if src == nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: nil operand", kind)
	}
	dec, err := b.Decimal(new(big.Int).SetUint64(uint64(ext)))
	if err != nil {
		return nil, err
	}
	return b.alloc(&Node{kind: kind, size: src.size + ext, children: []*Node{dec, src}}), nil
}

// Ite returns then if cond holds, otherwise othw. cond must be boolean and
// both branches must share a width.
func (b *Builder) Ite(cond, then, othw *Node) (*Node, error) {
	if cond == nil || then == nil || othw == nil {
		return nil, errors.Wrap(ErrMalformed, "ite: nil operand")
	}
	if cond.size != WidthBool {
		return nil, errors.Wrapf(ErrMalformed, "ite: condition is not boolean: width %d", cond.size)
	}
	if then.size != othw.size {
		return nil, errors.Wrapf(ErrMalformed, "ite: branch width mismatch: %d != %d", then.size, othw.size)
	}
	return b.alloc(&Node{kind: ITE, size: then.size, children: []*Node{cond, then, othw}}), nil
}

// Land returns the conjunction of two or more boolean operands.
func (b *Builder) Land(children ...*Node) (*Node, error) { return b.logical(LAND, children) }

// Lor returns the disjunction of two or more boolean operands.
func (b *Builder) Lor(children ...*Node) (*Node, error) { return b.logical(LOR, children) }

// Lnot returns the negation of a boolean operand.
func (b *Builder) Lnot(src *Node) (*Node, error) {
	if src == nil {
		return nil, errors.Wrap(ErrMalformed, "not: nil operand")
	}
	if src.size != WidthBool {
		return nil, errors.Wrapf(ErrMalformed, "not: operand is not boolean: width %d", src.size)
	}
	return b.alloc(&Node{kind: LNOT, size: WidthBool, children: []*Node{src}}), nil
}

// Bv returns a bit-vector literal of the given width. The value is reduced
// modulo 2^size; value and size are carried as DECIMAL children the way the
// translator consumes them.
func (b *Builder) Bv(value *big.Int, size uint) (*Node, error) {
	if size == 0 {
		return nil, errors.Wrap(ErrMalformed, "bv: zero width")
	}
	if value == nil || value.Sign() < 0 {
		return nil, errors.Wrap(ErrMalformed, "bv: value must be a non-negative integer")
	}
	masked := new(big.Int).Mod(value, new(big.Int).Lsh(big.NewInt(1), size))
	valDec, err := b.Decimal(masked)
	if err != nil {
		return nil, err
	}
	sizeDec, err := b.Decimal(new(big.Int).SetUint64(uint64(size)))
	if err != nil {
		return nil, err
	}
	return b.alloc(&Node{kind: BV, size: size, value: masked, children: []*Node{valDec, sizeDec}}), nil
}

// Decimal returns an arbitrary-precision non-negative integer leaf. Decimals
// parameterize EXTRACT, ZX, SX, BV, BVROL and BVROR; they are never
// bit-vector operands.
func (b *Builder) Decimal(value *big.Int) (*Node, error) {
	if value == nil || value.Sign() < 0 {
		return nil, errors.Wrap(ErrMalformed, "decimal: value must be a non-negative integer")
	}
	return b.alloc(&Node{kind: DECIMAL, size: WidthBool, value: new(big.Int).Set(value)}), nil
}

// Str returns a STRING symbol leaf. STRING leaves appear only as the symbol
// of a LET binding and as references to it inside the binding's body.
func (b *Builder) Str(name string) (*Node, error) {
	if name == "" {
		return nil, errors.Wrap(ErrMalformed, "string: empty symbol")
	}
	return b.alloc(&Node{kind: STRING, size: WidthBool, name: name}), nil
}

// Variable returns a variable leaf of the given width and registers its
// unique name with the arena. Fails with ErrDuplicateVariable if the name is
// taken; the arena is left unchanged on failure.
func (b *Builder) Variable(id uint64, name string, size uint) (*Node, error) {
	if name == "" {
		return nil, errors.Wrap(ErrMalformed, "variable: empty name")
	}
	if size == 0 {
		return nil, errors.Wrap(ErrMalformed, "variable: zero width")
	}
	if b.arena.Variable(name) != nil {
		return nil, errors.Wrapf(ErrDuplicateVariable, "variable %q", name)
	}
	n := b.alloc(&Node{kind: VARIABLE, size: size, name: name, varID: id})
	if err := b.arena.RecordVariable(name, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Let introduces a scoped symbol: within body, any STRING leaf carrying
// symbol's name refers to bound.
func (b *Builder) Let(symbol, bound, body *Node) (*Node, error) {
	if symbol == nil || bound == nil || body == nil {
		return nil, errors.Wrap(ErrMalformed, "let: nil operand")
	}
	if symbol.kind != STRING {
		return nil, errors.Wrapf(ErrMalformed, "let: symbol must be a string leaf, got %s", symbol.kind)
	}
	return b.alloc(&Node{kind: LET, size: body.size, children: []*Node{symbol, bound, body}}), nil
}

// Reference returns a typed alias for expr. References carry no children of
// their own; the translator resolves them at traversal time, through the
// expression store when one is configured and through expr otherwise, so a
// later rebind of the expression is observed. ExtractUnique never follows
// them. The node's width is taken from the root at hand; rebinding must
// preserve it.
func (b *Builder) Reference(expr *Expression) (*Node, error) {
	if expr == nil || expr.root == nil {
		return nil, errors.Wrap(ErrMalformed, "reference: nil expression")
	}
	return b.alloc(&Node{
		kind:   REFERENCE,
		size:   expr.root.size,
		exprID: expr.id,
		expr:   expr,
	}), nil
}
