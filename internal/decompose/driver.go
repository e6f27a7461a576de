// Package decompose recursively partitions LLVM IR modules into small,
// linkable, non-trivial fragments.
package decompose

import (
	stderrors "errors"
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"strings"

	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
)

// idPrefix is the predictable module identifier used while partitioning, so
// that the partitioning does not depend on the original module identifier
// (which is often a file name).
const idPrefix = "base"

// Bounds of the partition factor derived from the definition count in adaptive
// mode.
const (
	minAdaptiveFactor = 2
	maxAdaptiveFactor = 37
)

// Sink persists emitted partitions.
type Sink interface {
	// Emit persists the partition m under the given unique name.
	Emit(m *module.Module, name string) error
}

// SinkFunc is an adapter to allow the use of ordinary functions as sinks.
type SinkFunc func(m *module.Module, name string) error

// Emit calls f(m, name).
func (f SinkFunc) Emit(m *module.Module, name string) error {
	return f(m, name)
}

// Options configures the decomposition of a module.
type Options struct {
	// Partition factor; the number of fragments produced by each split.
	Factor int
	// Derive the partition factor of each split from the definition count of
	// the module being split, instead of using Factor.
	Adaptive bool
	// Reparse each partition before emitting it.
	Verify bool
	// Log the LLVM IR assembly of each partition before emitting it.
	Dump bool
	// Emit partitions without information identifying the original module.
	StripSource bool
	// Logger for progress messages; nil to discard.
	Logger *log.Logger
}

// Stats summarizes a decomposition.
type Stats struct {
	// Number of split attempts.
	Splits int
	// Number of empty fragments discarded.
	Empty int
	// Number of partitions produced by the first (locals preserving) pass.
	Partitions int
	// Number of partitions emitted by the second (externalizing) pass.
	Emitted int
}

// Decompose recursively splits the module into linkable partitions and emits
// them to the sink, named "0", "1", etc. Ownership of m moves to the
// decomposition.
//
// The first pass splits while preserving local linkage until no fragment can
// be subdivided further; the second pass repeats the splitting on those
// fragments with local symbols externalized, and emits the irreducible
// results. Each partition identifier encodes its lineage, e.g. "foo.ll_3_0_1"
// for the original module identifier "foo.ll".
//
// Emission errors do not stop the decomposition; they are joined and returned
// once the second pass completes. A split producing no useful fragment is an
// internal invariant violation and panics.
func Decompose(m *module.Module, sink Sink, opts Options) (*Stats, error) {
	if !opts.Adaptive && opts.Factor < 2 {
		return nil, errors.Errorf("invalid partition factor %d; must be at least 2", opts.Factor)
	}
	d := &driver{
		opts: opts,
		sink: sink,
		log:  opts.Logger,
	}
	if d.log == nil {
		d.log = log.New(ioutil.Discard, "", 0)
	}
	return d.decompose(m)
}

// driver tracks the state of a single decomposition.
type driver struct {
	opts Options
	sink Sink
	log  *log.Logger
	// Work queue of modules to split (LIFO).
	queue []*module.Module
	// Statistics of the decomposition.
	stats Stats
	// Deferred emission errors.
	errs []error
}

// decompose runs both passes of the decomposition of m.
func (d *driver) decompose(m *module.Module) (*Stats, error) {
	d.log.Printf("splitting %q", m.ID)
	origID := m.ID
	m.ID = idPrefix
	d.queue = append(d.queue, m)

	var second []*module.Module
	d.log.Printf("first pass")
	d.splitWhileUseful(true, func(part *module.Module) {
		second = append(second, part)
	})
	d.stats.Partitions = len(second)
	d.log.Printf("partitions: %d", d.stats.Partitions)

	// Externalizing globals means the partitions link together, but the result
	// exports every symbol, which is likely to break linking with other
	// modules.
	d.queue = second
	d.log.Printf("second pass")
	d.splitWhileUseful(false, func(part *module.Module) {
		d.emit(part, origID)
	})
	d.log.Printf("partitions: %d", d.stats.Emitted)
	if len(d.errs) > 0 {
		return &d.stats, stderrors.Join(d.errs...)
	}
	return &d.stats, nil
}

// splitWhileUseful repeatedly splits the modules of the work queue until it is
// empty. Useful fragments are requeued; fragments which could not be
// subdivided further are passed to irreducible.
func (d *driver) splitWhileUseful(preserveLocals bool, irreducible func(part *module.Module)) {
	for len(d.queue) > 0 {
		cur := d.pop()
		id := cur.ID
		n := d.factor(cur)
		before := len(d.queue)
		empty, count := 0, 0
		for _, part := range Split(cur, n, preserveLocals) {
			PruneDeadDeclarations(part)
			if !HasUsefulContent(part) {
				empty++
				continue
			}
			part.ID = id + "_" + strconv.Itoa(count)
			count++
			d.queue = append(d.queue, part)
		}
		d.stats.Splits++
		d.stats.Empty += empty
		if count == 0 {
			panic(fmt.Errorf("all %d partitions of module %q empty", n, id))
		}
		if len(d.queue)-before != count {
			panic(fmt.Errorf("module queue count mismatch; expected %d new modules, got %d", count, len(d.queue)-before))
		}
		if count+empty != n {
			panic(fmt.Errorf("partition count mismatch; expected %d partitions, got %d", n, count+empty))
		}
		if count == 1 {
			// Single partition; splitting failed to subdivide the module.
			irreducible(d.pop())
		}
	}
}

// pop removes and returns the last module of the work queue.
func (d *driver) pop() *module.Module {
	last := len(d.queue) - 1
	m := d.queue[last]
	d.queue[last] = nil
	d.queue = d.queue[:last]
	return m
}

// factor returns the partition factor used to split m.
func (d *driver) factor(m *module.Module) int {
	if !d.opts.Adaptive {
		return d.opts.Factor
	}
	n := len(m.Definitions())
	if n < minAdaptiveFactor {
		return minAdaptiveFactor
	}
	if n > maxAdaptiveFactor {
		return maxAdaptiveFactor
	}
	return n
}

// emit restores the original module identifier of the partition and emits it
// to the sink under the next sequential name. Errors are deferred.
func (d *driver) emit(part *module.Module, origID string) {
	if !strings.HasPrefix(part.ID, idPrefix) {
		panic(fmt.Errorf("partition identifier %q lacks prefix %q", part.ID, idPrefix))
	}
	if d.opts.StripSource {
		part.IR().SourceFilename = ""
	} else {
		part.ID = origID + strings.TrimPrefix(part.ID, idPrefix)
	}
	name := strconv.Itoa(d.stats.Emitted)
	d.stats.Emitted++
	if d.opts.Dump {
		d.log.Printf("partition %s:\n%s", name, part)
	}
	if d.opts.Verify {
		if _, err := module.Parse(part.ID, part.Bytes()); err != nil {
			d.errs = append(d.errs, errors.Wrapf(err, "invalid partition %s", name))
			return
		}
	}
	if err := d.sink.Emit(part, name); err != nil {
		d.errs = append(d.errs, errors.Wrapf(err, "unable to emit partition %s", name))
	}
}
