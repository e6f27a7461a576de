package decompose

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mewmew/allplay/internal/module"
)

// Split partitions the module into n fragments, some of which may be empty.
// Ownership of the definitions of m moves into the fragments; m must not be
// used after the call.
//
// Every definition ends up in exactly one fragment. Definitions are assigned in
// clusters: aliases and indirect functions stay with the definitions they
// refer to, comdat members stay together and, when preserveLocals is set, a
// local definition stays with every definition referring to it. The fragment
// of a cluster is derived from a hash of the module identifier and the
// smallest name in the cluster, so the assignment is reproducible and
// independent of iteration order.
//
// When preserveLocals is not set, local definitions are externalized first so
// the fragments may be linked together again.
//
// Each fragment is kept self-contained by declaring every global value it does
// not define; unused declarations are left for PruneDeadDeclarations.
func Split(m *module.Module, n int, preserveLocals bool) []*module.Module {
	if n < 1 {
		panic(fmt.Errorf("invalid partition count %d", n))
	}
	defs := m.Definitions()
	decls := m.Declarations()
	if !preserveLocals {
		for _, def := range defs {
			def.Externalize()
		}
	}
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Ident()] = i
	}

	// Cluster definitions.
	uf := newUnionFind(len(defs))
	comdats := make(map[string]int)
	for i, def := range defs {
		if comdat := def.Comdat(); comdat != "" {
			if j, ok := comdats[comdat]; ok {
				uf.union(i, j)
			} else {
				comdats[comdat] = i
			}
		}
		indirect := def.Kind() == module.KindAlias || def.Kind() == module.KindIFunc
		for _, ref := range def.Refs() {
			j, ok := index[ref]
			if !ok {
				continue
			}
			if indirect || (preserveLocals && (def.IsLocal() || defs[j].IsLocal())) {
				uf.union(i, j)
			}
		}
	}
	// Key each cluster by the smallest name among its members.
	keys := make(map[int]string)
	for i, def := range defs {
		root := uf.find(i)
		if key, ok := keys[root]; !ok || def.Name() < key {
			keys[root] = def.Name()
		}
	}

	frags := make([]*module.Module, n)
	for i := range frags {
		frags[i] = m.Fragment(m.ID)
	}
	buckets := make([]int, len(defs))
	for i, def := range defs {
		b := bucket(m.ID, keys[uf.find(i)], n)
		buckets[i] = b
		frags[b].Add(def)
	}
	if asms := m.ModuleAsm(); len(asms) > 0 {
		frags[asmBucket(m, keys, n)].SetModuleAsm(asms)
	}

	// Declare everything defined or declared elsewhere.
	for b, frag := range frags {
		for i, def := range defs {
			if buckets[i] != b {
				frag.Add(def.Declaration())
			}
		}
		for _, decl := range decls {
			frag.Add(decl.Declaration())
		}
	}
	return frags
}

// asmBucket returns the fragment receiving the module-level inline asm of m.
// Inline asm defining symbols is a unit of its own; other inline asm joins the
// cluster with the smallest key, so that it is never dropped together with an
// empty fragment.
func asmBucket(m *module.Module, keys map[int]string, n int) int {
	for _, sym := range m.AsmSymbols() {
		if sym.Defined {
			return bucket(m.ID, "", n)
		}
	}
	min, found := "", false
	for _, key := range keys {
		if !found || key < min {
			min, found = key, true
		}
	}
	return bucket(m.ID, min, n)
}

// bucket returns the fragment index in [0, n) of the cluster with the given
// key, of the module with the given identifier.
func bucket(id, key string, n int) int {
	h := md5.New()
	io.WriteString(h, id)
	h.Write([]byte{0})
	io.WriteString(h, key)
	sum := h.Sum(nil)
	return int(binary.LittleEndian.Uint64(sum[8:]) % uint64(n))
}

// unionFind is a disjoint-set forest over the integers [0, n).
type unionFind struct {
	parent []int
}

// newUnionFind returns a disjoint-set forest of n singleton sets.
func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

// find returns the representative of the set containing x.
func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the sets containing x and y.
func (uf *unionFind) union(x, y int) {
	rx, ry := uf.find(x), uf.find(y)
	if rx == ry {
		return
	}
	// Keep the smaller index as representative for stable roots.
	if ry < rx {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
}
