package sigil

import (
	"bytes"
	"fmt"
	"math/big"
)

// Kind identifies the operator or leaf type of a node.
type Kind int

// Node kinds. The set is closed; the translator rejects anything else.
const (
	// Bit-vector arithmetic.
	BVADD Kind = iota + 1
	BVSUB
	BVMUL
	BVUDIV
	BVSDIV
	BVUREM
	BVSREM
	BVSMOD
	BVAND
	BVOR
	BVXOR
	BVNAND
	BVNOR
	BVXNOR
	BVSHL
	BVLSHR
	BVASHR
	BVROL
	BVROR
	BVNEG
	BVNOT

	// Bit-vector comparisons.
	BVULT
	BVULE
	BVUGT
	BVUGE
	BVSLT
	BVSLE
	BVSGT
	BVSGE
	EQUAL
	DISTINCT

	// Structural.
	CONCAT
	EXTRACT
	ZX
	SX
	ITE

	// Boolean logic.
	LAND
	LOR
	LNOT

	// Leaves.
	BV
	DECIMAL
	STRING
	VARIABLE

	// Binding.
	LET

	// Link into the expression store.
	REFERENCE
)

var kindNames = [...]string{
	BVADD:     "bvadd",
	BVSUB:     "bvsub",
	BVMUL:     "bvmul",
	BVUDIV:    "bvudiv",
	BVSDIV:    "bvsdiv",
	BVUREM:    "bvurem",
	BVSREM:    "bvsrem",
	BVSMOD:    "bvsmod",
	BVAND:     "bvand",
	BVOR:      "bvor",
	BVXOR:     "bvxor",
	BVNAND:    "bvnand",
	BVNOR:     "bvnor",
	BVXNOR:    "bvxnor",
	BVSHL:     "bvshl",
	BVLSHR:    "bvlshr",
	BVASHR:    "bvashr",
	BVROL:     "bvrol",
	BVROR:     "bvror",
	BVNEG:     "bvneg",
	BVNOT:     "bvnot",
	BVULT:     "bvult",
	BVULE:     "bvule",
	BVUGT:     "bvugt",
	BVUGE:     "bvuge",
	BVSLT:     "bvslt",
	BVSLE:     "bvsle",
	BVSGT:     "bvsgt",
	BVSGE:     "bvsge",
	EQUAL:     "=",
	DISTINCT:  "distinct",
	CONCAT:    "concat",
	EXTRACT:   "extract",
	ZX:        "zx",
	SX:        "sx",
	ITE:       "ite",
	LAND:      "and",
	LOR:       "or",
	LNOT:      "not",
	BV:        "bv",
	DECIMAL:   "decimal",
	STRING:    "string",
	VARIABLE:  "variable",
	LET:       "let",
	REFERENCE: "reference",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind<%d>", int(k))
}

// Node is a single vertex of the expression DAG. Nodes are created through a
// Builder, owned by exactly one Arena, and shared freely between expressions.
// A *Node handle is a borrow valid for the owning arena's lifetime.
//
// Ignoring REFERENCE resolution the DAG is acyclic; a REFERENCE resolves
// through its symbolic expression only during translation.
type Node struct {
	kind     Kind
	size     uint
	children []*Node

	// Leaf payloads. value holds the DECIMAL payload and, denormalized, the
	// masked BV literal; name holds VARIABLE and STRING symbols.
	value  *big.Int
	name   string
	varID  uint64
	exprID uint64
	expr   *Expression

	hash     *big.Int
	symbolic bool

	id       uint64 // assigned by the arena on record
	released bool
}

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// Children returns the ordered child sequence. The returned slice is owned
// by the node and must not be mutated.
func (n *Node) Children() []*Node { return n.children }

// BitSize returns the width of the value the node produces, in bits.
// Boolean-producing nodes report the sentinel width 1.
func (n *Node) BitSize() uint { return n.size }

// Hash returns the cached 512-bit structural fingerprint of the node. Two
// structurally identical trees hash equal. The returned value must not be
// mutated.
func (n *Node) Hash() *big.Int { return n.hash }

// IsSymbolic reports whether the subtree below the node contains a variable.
// References are reported symbolic without being resolved.
func (n *Node) IsSymbolic() bool { return n.symbolic }

// VarID returns the variable id of a VARIABLE node, zero otherwise.
func (n *Node) VarID() uint64 { return n.varID }

// Name returns the symbol of a VARIABLE or STRING node, "" otherwise.
func (n *Node) Name() string { return n.name }

// ExprID returns the expression id of a REFERENCE node, zero otherwise.
func (n *Node) ExprID() uint64 { return n.exprID }

// Expression returns the symbolic expression a REFERENCE node aliases,
// nil for every other kind.
func (n *Node) Expression() *Expression { return n.expr }

// Value returns the integer payload of a BV or DECIMAL leaf, nil otherwise.
// The returned value must not be mutated.
func (n *Node) Value() *big.Int { return n.value }

// Released reports whether the owning arena has released the node. Accessing
// a released node is a caller bug; the flag exists so misuse is observable.
func (n *Node) Released() bool { return n.released }

// Evaluate returns the concrete value of a constant leaf: the masked literal
// of a BV node or the payload of a DECIMAL node. Every other kind, variables
// included, returns nil; concretization of whole trees is the translator's
// eval mode, which consults the variable evaluator.
func (n *Node) Evaluate() *big.Int {
	switch n.kind {
	case BV, DECIMAL:
		return new(big.Int).Set(n.value)
	default:
		return nil
	}
}

// String renders the node in an SMT-LIB-flavored prefix form.
func (n *Node) String() string {
	switch n.kind {
	case BV:
		return fmt.Sprintf("(_ bv%s %d)", n.value.String(), n.size)
	case DECIMAL:
		return n.value.String()
	case STRING, VARIABLE:
		return n.name
	case REFERENCE:
		return fmt.Sprintf("ref!%d", n.exprID)
	case EXTRACT:
		return fmt.Sprintf("((_ extract %s %s) %s)", n.children[0], n.children[1], n.children[2])
	case ZX:
		return fmt.Sprintf("((_ zero_extend %s) %s)", n.children[0], n.children[1])
	case SX:
		return fmt.Sprintf("((_ sign_extend %s) %s)", n.children[0], n.children[1])
	default:
		var buf bytes.Buffer
		buf.WriteRune('(')
		buf.WriteString(n.kind.String())
		for _, child := range n.children {
			buf.WriteRune(' ')
			buf.WriteString(child.String())
		}
		buf.WriteRune(')')
		return buf.String()
	}
}

// NodeSet is a set of node handles, keyed by identity.
type NodeSet map[*Node]struct{}

// Add inserts n into the set.
func (s NodeSet) Add(n *Node) { s[n] = struct{}{} }

// Contains reports whether n is a member of the set.
func (s NodeSet) Contains(n *Node) bool {
	_, ok := s[n]
	return ok
}
