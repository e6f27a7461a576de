package decompose

import (
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

// Job is an independent decomposition run of one module.
type Job struct {
	// Name of the job, used to attribute errors (e.g. the input path).
	Name string
	// Load returns the module to decompose.
	Load func() (*module.Module, error)
	// Open returns the sink receiving the partitions of the module. Sinks
	// implementing io.Closer are closed when the run completes.
	Open func() (Sink, error)
}

// BatchOptions configures the fan-out of decomposition runs.
type BatchOptions struct {
	// Number of concurrent runs; 0 to use GOMAXPROCS.
	Workers int
	// Progress is called after each run with the number of completed runs and
	// the total number of runs; calls are serialized.
	Progress func(done, total int)
}

// DecomposeAll decomposes the module of each job on a pool of workers.
//
// Runs share no state; a failing run does not affect its siblings. The errors
// of all failed runs, attributed to their job names, are joined once the pool
// drains. Jobs not yet started when ctx is cancelled fail with the context
// error.
func DecomposeAll(ctx context.Context, jobs []Job, opts Options, bopts BatchOptions) error {
	workers := bopts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	var (
		// Protects done.
		mu   sync.Mutex
		done int
	)
	for _, job := range jobs {
		job := job
		p.Go(func(ctx context.Context) error {
			var err error
			if err = ctx.Err(); err == nil {
				err = runJob(job, opts)
			}
			mu.Lock()
			done++
			if bopts.Progress != nil {
				bopts.Progress(done, len(jobs))
			}
			mu.Unlock()
			if err != nil {
				return errors.Wrapf(err, "unable to decompose %q", job.Name)
			}
			return nil
		})
	}
	return p.Wait()
}

// runJob decomposes the module of a single job.
func runJob(job Job, opts Options) (err error) {
	m, err := job.Load()
	if err != nil {
		return errors.WithStack(err)
	}
	if !HasUsefulContent(m) {
		return errors.Errorf("module %q has no definitions", m.ID)
	}
	sink, err := job.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	if c, ok := sink.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}()
	}
	_, err = Decompose(m, sink, opts)
	return err
}
