package scan

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/mewmew/allplay/internal/module"
)

// Hash is a coarse structural hash of a function. Functions which are equal up
// to constants, types and operands have equal hashes.
type Hash uint64

// String returns the hash in hexadecimal notation.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// HashFunction returns the structural hash of the function, computed from its
// parameter count, whether it is variadic, its number of basic blocks and the
// opcodes of its instructions in layout order.
func HashFunction(f *ir.Func) Hash {
	h := fnv.New64a()
	var buf [8]byte
	put := func(x uint64) {
		binary.LittleEndian.PutUint64(buf[:], x)
		h.Write(buf[:])
	}
	put(uint64(len(f.Params)))
	if f.Sig.Variadic {
		put(1)
	} else {
		put(0)
	}
	put(uint64(len(f.Blocks)))
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			fmt.Fprintf(h, "%T;", inst)
		}
		fmt.Fprintf(h, "%T;", block.Term)
	}
	return Hash(h.Sum64())
}

// CountInsts returns the number of instructions (terminators included) of the
// function.
func CountInsts(f *ir.Func) int {
	n := 0
	for _, block := range f.Blocks {
		n += len(block.Insts) + 1
	}
	return n
}

// FuncDesc describes a function definition.
type FuncDesc struct {
	// Source of the module defining the function.
	Source string
	// Function name.
	Name string
	// Number of instructions.
	Insts int
	// Structural hash.
	Hash Hash
}

// HashModule returns the descriptions of the function definitions of m, and
// the total instruction count of the module.
func HashModule(source string, m *module.Module) ([]FuncDesc, int) {
	var descs []FuncDesc
	total := 0
	for _, f := range m.IR().Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		d := FuncDesc{
			Source: source,
			Name:   f.Name(),
			Insts:  CountInsts(f),
			Hash:   HashFunction(f),
		}
		total += d.Insts
		descs = append(descs, d)
	}
	return descs, total
}

// Group is a set of functions sharing the same hash.
type Group struct {
	Hash  Hash
	Funcs []FuncDesc
}

// Insts returns the number of instructions of the functions of the group.
func (g *Group) Insts() int {
	n := 0
	for _, f := range g.Funcs {
		n += f.Insts
	}
	return n
}

// Redundant returns the number of instructions of the group which are
// possibly redundant; i.e. those of every function but the first.
func (g *Group) Redundant() int {
	return g.Insts() - g.Funcs[0].Insts
}

// GroupByHash groups the functions by hash. Singleton groups are dropped, and
// groups are sorted by size, largest first; groups of equal size are ordered
// by hash.
func GroupByHash(funcs []FuncDesc) []*Group {
	sorted := make([]FuncDesc, len(funcs))
	copy(sorted, funcs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Hash < sorted[j].Hash
	})
	var groups []*Group
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Hash == sorted[i].Hash {
			j++
		}
		if j-i > 1 {
			groups = append(groups, &Group{Hash: sorted[i].Hash, Funcs: sorted[i:j]})
		}
		i = j
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Funcs) > len(groups[j].Funcs)
	})
	return groups
}

// RedundantRatio returns the ratio of possibly redundant instructions of the
// groups to the total instruction count.
func RedundantRatio(groups []*Group, total int) float64 {
	if total == 0 {
		return 0
	}
	redundant := 0
	for _, g := range groups {
		redundant += g.Redundant()
	}
	return float64(redundant) / float64(total)
}
