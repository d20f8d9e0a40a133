package sigil

import (
	"io"
	"math/big"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Translator lowers expression DAGs into solver terms. The traversal is
// iterative: symbolic traces routinely produce trees thousands of levels
// deep, far past what the call stack tolerates, so the translator never
// recurses over the AST.
//
// A translator only reads the DAG. It is single-threaded; each Convert call
// runs to completion with a private memo and symbol table.
type Translator struct {
	solver    Solver
	store     ExpressionStore
	evaluator Evaluator
	eval      bool
	logger    logrus.FieldLogger
}

// TranslatorOption configures a translator.
type TranslatorOption func(*Translator)

// WithEvaluator puts the translator in eval mode: variable leaves are
// concretized through ev instead of materializing fresh solver constants.
func WithEvaluator(ev Evaluator) TranslatorOption {
	return func(t *Translator) {
		t.evaluator = ev
		t.eval = true
	}
}

// WithStore routes REFERENCE resolution through store, keyed by expression
// id. Without a store, references resolve through the expression object they
// were built against; either way resolution happens at traversal time, so a
// rebound expression is picked up by the next Convert.
func WithStore(store ExpressionStore) TranslatorOption {
	return func(t *Translator) {
		t.store = store
	}
}

// WithLogger installs a structured log sink for per-node lowering traces.
// The default sink discards everything.
func WithLogger(logger logrus.FieldLogger) TranslatorOption {
	return func(t *Translator) {
		t.logger = logger
	}
}

// NewTranslator returns a translator lowering into solver.
func NewTranslator(solver Solver, opts ...TranslatorOption) *Translator {
	t := &Translator{
		solver: solver,
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// frame is one entry of the explicit traversal stack: a node and the index
// of the next child to descend into.
type frame struct {
	node  *Node
	child int
}

// Convert lowers the DAG rooted at root and returns the solver term for the
// root. Shared nodes are lowered exactly once per call; reference nodes
// resolve through their expression on first visit only. Any failure aborts
// the conversion and discards the memo and symbol table.
func (t *Translator) Convert(root *Node) (Term, error) {
	if root == nil {
		return nil, errors.Wrap(ErrNullInput, "convert")
	}

	symbols := make(map[string]*Node)
	order, err := t.fillWorkStack(root, symbols)
	if err != nil {
		return nil, err
	}
	assert(len(order) > 0, "empty visit order for non-nil root")
	t.logger.WithField("nodes", len(order)).Debug("visit order computed")

	memo := make(map[*Node]Term, len(order))
	for _, n := range order {
		if _, ok := memo[n]; ok {
			continue
		}
		if n.kind == STRING {
			// The symbol leaf of a LET is visited before its bound
			// expression; operands resolve through the symbol table, so the
			// leaf itself only memoizes once the binding has been lowered.
			bound, ok := symbols[n.name]
			if !ok {
				return nil, errors.Wrapf(ErrUnboundSymbol, "symbol %q", n.name)
			}
			if term, ok := memo[bound]; ok {
				memo[n] = term
			}
			continue
		}

		term, err := t.lower(n, memo, symbols)
		if err != nil {
			return nil, err
		}
		memo[n] = term
		t.logger.WithFields(logrus.Fields{
			"kind":  n.kind.String(),
			"width": n.size,
			"hash":  hashTag(n),
		}).Debug("lowered")
	}

	return t.operand(root, memo, symbols)
}

// fillWorkStack computes the lowering order: an iterative post-order walk
// where every node appears after all of its dependencies. Reference nodes
// chase their expression root exactly once per visit; the child-index guard
// prevents re-entry. A node reached along several reference paths may appear
// more than once, which the memo absorbs during lowering.
//
// LET bindings are registered on the way down so that symbol leaves inside
// the binding's body resolve during lowering.
func (t *Translator) fillWorkStack(root *Node, symbols map[string]*Node) ([]*Node, error) {
	var order []*Node
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		i := len(stack) - 1
		n, ci := stack[i].node, stack[i].child

		if n.kind == LET && ci == 0 {
			symbols[n.children[0].name] = n.children[1]
		}

		if ci < len(n.children) {
			stack[i].child++
			stack = append(stack, frame{node: n.children[ci]})
		} else if n.kind == REFERENCE && ci == 0 {
			referenced := t.resolveReference(n)
			if referenced == nil {
				return nil, errors.Wrapf(ErrMalformed, "reference ref!%d resolves to nothing", n.exprID)
			}
			stack[i].child++
			stack = append(stack, frame{node: referenced})
		} else {
			order = append(order, n)
			stack = stack[:i]
		}
	}
	return order, nil
}

// resolveReference returns the current root a reference node aliases: by id
// through the configured store, through the node's expression object
// otherwise. Resolution happens per traversal, never at construction, so a
// rebound expression id is observed by every reference pointing at it.
func (t *Translator) resolveReference(n *Node) *Node {
	if t.store != nil {
		return t.store.AST(n.exprID)
	}
	if n.expr != nil {
		return n.expr.Root()
	}
	return nil
}

// operand resolves the solver term for a child node. STRING leaves resolve
// through the active LET bindings; everything else reads the memo.
func (t *Translator) operand(n *Node, memo map[*Node]Term, symbols map[string]*Node) (Term, error) {
	if n.kind == STRING {
		bound, ok := symbols[n.name]
		if !ok {
			return nil, errors.Wrapf(ErrUnboundSymbol, "symbol %q", n.name)
		}
		n = bound
	}
	term, ok := memo[n]
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "%s operand lowered out of order", n.kind)
	}
	return term, nil
}

// boolOperand resolves a child term and requires it to carry boolean sort.
func (t *Translator) boolOperand(kind Kind, n *Node, memo map[*Node]Term, symbols map[string]*Node) (Term, error) {
	term, err := t.operand(n, memo, symbols)
	if err != nil {
		return nil, err
	}
	if !t.solver.IsBool(term) {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s applies only to boolean operands", kind)
	}
	return term, nil
}

// lower dispatches one node to the adapter. All of the node's dependencies
// have already been lowered.
func (t *Translator) lower(n *Node, memo map[*Node]Term, symbols map[string]*Node) (Term, error) {
	children := n.children

	if fn := t.binaryFn(n.kind); fn != nil {
		a, err := t.operand(children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		b, err := t.operand(children[1], memo, symbols)
		if err != nil {
			return nil, err
		}
		return fn(a, b)
	}

	switch n.kind {
	case BVNEG, BVNOT:
		a, err := t.operand(children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		if n.kind == BVNEG {
			return t.solver.Bvneg(a)
		}
		return t.solver.Bvnot(a)

	case BVROL, BVROR:
		amount := uint(children[0].value.Uint64())
		a, err := t.operand(children[1], memo, symbols)
		if err != nil {
			return nil, err
		}
		if n.kind == BVROL {
			return t.solver.RotateLeft(amount, a)
		}
		return t.solver.RotateRight(amount, a)

	case BV:
		value := children[0].value
		size := uint(children[1].value.Uint64())
		return t.solver.BvNumeral(value, size)

	case DECIMAL:
		return t.solver.IntNumeral(n.value)

	case CONCAT:
		// children[0] is the most significant segment; the left fold keeps
		// it in the solver concat's first-argument position.
		cur, err := t.operand(children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		for _, child := range children[1:] {
			next, err := t.operand(child, memo, symbols)
			if err != nil {
				return nil, err
			}
			if cur, err = t.solver.Concat(cur, next); err != nil {
				return nil, err
			}
		}
		return cur, nil

	case EXTRACT:
		hi := uint(children[0].value.Uint64())
		lo := uint(children[1].value.Uint64())
		a, err := t.operand(children[2], memo, symbols)
		if err != nil {
			return nil, err
		}
		return t.solver.Extract(hi, lo, a)

	case ZX, SX:
		ext := uint(children[0].value.Uint64())
		a, err := t.operand(children[1], memo, symbols)
		if err != nil {
			return nil, err
		}
		if n.kind == ZX {
			return t.solver.ZeroExtend(ext, a)
		}
		return t.solver.SignExtend(ext, a)

	case ITE:
		cond, err := t.operand(children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		then, err := t.operand(children[1], memo, symbols)
		if err != nil {
			return nil, err
		}
		othw, err := t.operand(children[2], memo, symbols)
		if err != nil {
			return nil, err
		}
		return t.solver.Ite(cond, then, othw)

	case LAND, LOR:
		cur, err := t.boolOperand(n.kind, children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		for _, child := range children[1:] {
			next, err := t.boolOperand(n.kind, child, memo, symbols)
			if err != nil {
				return nil, err
			}
			if n.kind == LAND {
				cur, err = t.solver.And(cur, next)
			} else {
				cur, err = t.solver.Or(cur, next)
			}
			if err != nil {
				return nil, err
			}
		}
		return cur, nil

	case LNOT:
		a, err := t.boolOperand(n.kind, children[0], memo, symbols)
		if err != nil {
			return nil, err
		}
		return t.solver.Not(a)

	case LET:
		symbols[children[0].name] = children[1]
		return t.operand(children[2], memo, symbols)

	case REFERENCE:
		referenced := t.resolveReference(n)
		if referenced == nil {
			return nil, errors.Wrapf(ErrMalformed, "reference ref!%d resolves to nothing", n.exprID)
		}
		return t.operand(referenced, memo, symbols)

	case VARIABLE:
		if t.eval {
			value := t.evaluator.Evaluate(n.varID)
			if value == nil {
				return nil, errors.Wrapf(ErrMalformed, "variable %q has no concrete value", n.name)
			}
			masked := new(big.Int).Mod(value, new(big.Int).Lsh(big.NewInt(1), n.size))
			return t.solver.BvNumeral(masked, n.size)
		}
		return t.solver.BvConst(n.name, n.size)

	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %s", n.kind)
	}
}

// binaryFn returns the adapter function for a two-operand kind lowered
// through the uniform table, nil for every other kind.
func (t *Translator) binaryFn(kind Kind) func(a, b Term) (Term, error) {
	switch kind {
	case BVADD:
		return t.solver.Bvadd
	case BVSUB:
		return t.solver.Bvsub
	case BVMUL:
		return t.solver.Bvmul
	case BVUDIV:
		return t.solver.Bvudiv
	case BVSDIV:
		return t.solver.Bvsdiv
	case BVUREM:
		return t.solver.Bvurem
	case BVSREM:
		return t.solver.Bvsrem
	case BVSMOD:
		return t.solver.Bvsmod
	case BVAND:
		return t.solver.Bvand
	case BVOR:
		return t.solver.Bvor
	case BVXOR:
		return t.solver.Bvxor
	case BVNAND:
		return t.solver.Bvnand
	case BVNOR:
		return t.solver.Bvnor
	case BVXNOR:
		return t.solver.Bvxnor
	case BVSHL:
		return t.solver.Bvshl
	case BVLSHR:
		return t.solver.Bvlshr
	case BVASHR:
		return t.solver.Bvashr
	case BVULT:
		return t.solver.Bvult
	case BVULE:
		return t.solver.Bvule
	case BVUGT:
		return t.solver.Bvugt
	case BVUGE:
		return t.solver.Bvuge
	case BVSLT:
		return t.solver.Bvslt
	case BVSLE:
		return t.solver.Bvsle
	case BVSGT:
		return t.solver.Bvsgt
	case BVSGE:
		return t.solver.Bvsge
	case EQUAL:
		return t.solver.Eq
	case DISTINCT:
		return t.solver.Distinct
	default:
		return nil
	}
}

// hashTag returns the low 64 bits of a node's fingerprint for log fields.
func hashTag(n *Node) uint64 {
	return new(big.Int).And(n.hash, maxUint64).Uint64()
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// discardLogger returns the default no-op log sink.
func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
