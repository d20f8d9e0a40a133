package sigil

import "math/big"

// The structural fingerprint is 512 bits wide: wide enough that collisions
// between distinct subtrees are not a practical concern even over traces
// with millions of shared nodes.
const hashBits = 512

var (
	hashMod = new(big.Int).Lsh(big.NewInt(1), hashBits)
	hashPad = big.NewInt(3)
)

// kindConstant returns the kind-specific mixing constant. Derived from the
// golden-ratio multiplier so every kind gets a distinct odd seed.
func kindConstant(k Kind) *big.Int {
	return new(big.Int).SetUint64((uint64(k)*0x9e3779b97f4a7c15 + 0x7f4a7c15) | 1)
}

// rotl512 rotates x left by n bits within the 512-bit hash domain.
func rotl512(x *big.Int, n uint) *big.Int {
	n %= hashBits
	hi := new(big.Int).Lsh(x, n)
	lo := new(big.Int).Rsh(x, hashBits-n)
	hi.Or(hi, lo)
	return hi.Mod(hi, hashMod)
}

// computeHash derives the 512-bit fingerprint of a node from its kind, its
// width, its leaf payload, and the cached hashes of its children. Child
// contributions are rotated by level plus their position so that sibling
// reorderings perturb the result; the builder always passes level 1, so depth
// enters only through the children's own hashes. The fingerprint is a pure
// function of its inputs; structurally identical trees hash equal.
func computeHash(kind Kind, size uint, level uint, payload *big.Int, name string, id uint64, children []*Node) *big.Int {
	h := kindConstant(kind)
	h.Mul(h, new(big.Int).SetUint64(uint64(size)+1))
	h.Mod(h, hashMod)

	if payload != nil {
		p := new(big.Int).Add(payload, hashPad)
		h.Mul(h, p)
		h.Mod(h, hashMod)
	}
	if name != "" {
		p := new(big.Int).SetBytes([]byte(name))
		p.Add(p, hashPad)
		h.Mul(h, p)
		h.Mod(h, hashMod)
	}
	if id != 0 {
		p := new(big.Int).SetUint64(id)
		p.Add(p, hashPad)
		h.Mul(h, p)
		h.Mod(h, hashMod)
	}
	for i, child := range children {
		h.Mul(h, rotl512(child.hash, level+uint(i)+1))
		h.Mod(h, hashMod)
	}

	// Zero would erase all structure from later multiplications.
	if h.Sign() == 0 {
		h = kindConstant(kind)
	}
	return h
}
