package sigil

import (
	"github.com/benbjohnson/immutable"
)

// Expression is a symbolic expression: an id bound to the root of an AST.
// The engine rebinds an expression's root in place as semantics are refined;
// reference nodes alias the expression object itself, so every holder
// observes the rebind at the next traversal.
type Expression struct {
	id   uint64
	root *Node
}

// NewExpression returns a new expression binding id to root.
func NewExpression(id uint64, root *Node) *Expression {
	return &Expression{id: id, root: root}
}

// ID returns the expression id.
func (e *Expression) ID() uint64 { return e.id }

// Root returns the current root node of the expression's AST.
func (e *Expression) Root() *Node { return e.root }

// SetRoot replaces the expression's root in place. Existing holders,
// reference nodes included, resolve to the new root from now on.
func (e *Expression) SetRoot(root *Node) { e.root = root }

// ExpressionStore resolves symbolic-expression ids to their current AST
// roots during REFERENCE resolution. It is read-only from the core's point
// of view and may never return nil for a live id.
type ExpressionStore interface {
	AST(id uint64) *Node
}

// Ensure pool implements interface.
var _ ExpressionStore = (*ExpressionPool)(nil)

// ExpressionPool is an in-memory expression store. The backing map is
// persistent, so holders of an earlier pool value keep a consistent view of
// which ids exist while the engine binds further expressions; the expression
// objects themselves are shared, so rebinding an id is visible everywhere.
type ExpressionPool struct {
	exprs *immutable.SortedMap // expression id → *Expression
}

// NewExpressionPool returns an empty pool.
func NewExpressionPool() *ExpressionPool {
	return &ExpressionPool{
		exprs: immutable.NewSortedMap(&uint64Comparer{}),
	}
}

// Bind registers root under id and returns the expression. Rebinding an id
// updates the existing expression in place, so references built against it
// resolve to the new root.
func (p *ExpressionPool) Bind(id uint64, root *Node) *Expression {
	if expr := p.Expression(id); expr != nil {
		expr.SetRoot(root)
		return expr
	}
	expr := NewExpression(id, root)
	p.exprs = p.exprs.Set(id, expr)
	return expr
}

// Expression returns the expression bound to id, or nil.
func (p *ExpressionPool) Expression(id uint64) *Expression {
	v, _ := p.exprs.Get(id)
	if v == nil {
		return nil
	}
	return v.(*Expression)
}

// AST returns the root node currently bound to id, or nil.
func (p *ExpressionPool) AST(id uint64) *Node {
	if expr := p.Expression(id); expr != nil {
		return expr.root
	}
	return nil
}

// Len returns the number of bound expressions.
func (p *ExpressionPool) Len() int { return p.exprs.Len() }
