package sigil

import (
	"github.com/benbjohnson/immutable"
	"github.com/pkg/errors"
)

// Arena owns every node allocated for a logical analysis scope. It tracks
// the live-node set, keeps the name index for variable nodes, and supports
// bulk release, targeted release, and snapshot/restore.
//
// The live set and the variable map are persistent maps: Snapshot shares
// them structurally with the backup arena without copying, and nothing a
// backup does can corrupt the original.
//
// An arena is single-threaded; sharing one across goroutines is unsupported.
type Arena struct {
	nodes *immutable.SortedMap // node id → *Node
	vars  *immutable.SortedMap // variable name → *Node

	backup bool
	seq    uint64
}

// NewArena returns a new owning arena with an empty live set.
func NewArena() *Arena {
	return &Arena{
		nodes: immutable.NewSortedMap(&uint64Comparer{}),
		vars:  immutable.NewSortedMap(&stringComparer{}),
	}
}

// Record tracks a freshly allocated node and returns the same handle.
func (a *Arena) Record(node *Node) *Node {
	if node == nil {
		return nil
	}
	if node.id == 0 {
		a.seq++
		node.id = a.seq
	}
	a.nodes = a.nodes.Set(node.id, node)
	return node
}

// RecordVariable indexes a VARIABLE node under its unique name.
// Fails with ErrDuplicateVariable if the name is already registered; the
// arena is left unchanged on failure.
func (a *Arena) RecordVariable(name string, node *Node) error {
	if v, _ := a.vars.Get(name); v != nil {
		return errors.Wrapf(ErrDuplicateVariable, "variable %q", name)
	}
	a.vars = a.vars.Set(name, node)
	return nil
}

// Variable returns the node registered under name, or nil.
func (a *Arena) Variable(name string) *Node {
	v, _ := a.vars.Get(name)
	if v == nil {
		return nil
	}
	return v.(*Node)
}

// FreeAll releases every tracked node and clears both the live set and the
// variable map.
func (a *Arena) FreeAll() {
	for itr := a.nodes.Iterator(); !itr.Done(); {
		_, v := itr.Next()
		release(v.(*Node))
	}
	a.nodes = immutable.NewSortedMap(&uint64Comparer{})
	a.vars = immutable.NewSortedMap(&stringComparer{})
}

// FreeSubset removes each node in set from the live set, drops variable
// entries whose target is in the set, and releases the nodes.
//
// On a backup arena the entries are dropped from the backup's view only and
// the nodes themselves stay live: a backup does not own its nodes.
func (a *Arena) FreeSubset(set NodeSet) {
	for node := range set {
		a.nodes = a.nodes.Delete(node.id)
		if node.kind == VARIABLE {
			if cur, _ := a.vars.Get(node.name); cur == node {
				a.vars = a.vars.Delete(node.name)
			}
		}
		if !a.backup {
			release(node)
		}
	}
}

// ExtractUnique returns the set of nodes reachable from root through
// Children(), root included. REFERENCE edges are never followed: resolution
// through the expression store is a translator-time concern.
//
// The walk is iterative so that chains far deeper than the call stack can
// be collected.
func (a *Arena) ExtractUnique(root *Node) NodeSet {
	set := make(NodeSet)
	if root == nil {
		return set
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set.Contains(n) {
			continue
		}
		set.Add(n)
		stack = append(stack, n.children...)
	}
	return set
}

// Snapshot returns a backup arena sharing the live set and variable map.
// The backup does not own the nodes: releasing them remains the original's
// job and the backup's Close is a no-op.
func (a *Arena) Snapshot() *Arena {
	return &Arena{
		nodes:  a.nodes,
		vars:   a.vars,
		backup: true,
		seq:    a.seq,
	}
}

// Restore releases every node tracked here but not tracked in other, adopts
// other's live set and variable map, and turns the receiver into a backup.
func (a *Arena) Restore(other *Arena) {
	for itr := a.nodes.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		if cur, _ := other.nodes.Get(k); cur == nil {
			release(v.(*Node))
		}
	}
	a.nodes = other.nodes
	a.vars = other.vars
	a.backup = true
	if other.seq > a.seq {
		a.seq = other.seq
	}
}

// Close releases all nodes unless the arena is a backup.
func (a *Arena) Close() error {
	if !a.backup {
		a.FreeAll()
	}
	return nil
}

// IsBackup reports whether the arena is a non-owning backup.
func (a *Arena) IsBackup() bool { return a.backup }

// Len returns the number of tracked nodes.
func (a *Arena) Len() int { return a.nodes.Len() }

// VariableLen returns the number of registered variable names.
func (a *Arena) VariableLen() int { return a.vars.Len() }

// Nodes returns the tracked nodes in allocation order.
func (a *Arena) Nodes() []*Node {
	nodes := make([]*Node, 0, a.nodes.Len())
	for itr := a.nodes.Iterator(); !itr.Done(); {
		_, v := itr.Next()
		nodes = append(nodes, v.(*Node))
	}
	return nodes
}

// release marks a node as dead. The Go runtime reclaims the memory once the
// last handle drops; the flag makes use-after-release observable.
func release(n *Node) {
	n.released = true
}

// uint64Comparer compares two 64-bit unsigned integers. Implements
// immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, 1 if a is greater than b, and 0 if
// they are equal. Panic if a or b is not a uint64.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

// Compare returns -1 if a is less than b, 1 if a is greater than b, and 0 if
// they are equal. Panic if a or b is not a string.
func (c *stringComparer) Compare(a, b interface{}) int {
	if i, j := a.(string), b.(string); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
