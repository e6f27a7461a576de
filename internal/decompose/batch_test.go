package decompose

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mewmew/allplay/internal/module"
	"github.com/spf13/afero"
)

func TestDecomposeAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	var jobs []Job
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("chain%d.ll", i)
		src := chainLL(5 + i)
		if i == 3 {
			src = "declare void @f()\n"
		}
		jobs = append(jobs, Job{
			Name: name,
			Load: func() (*module.Module, error) {
				return module.Parse(name, []byte(src))
			},
			Open: func() (Sink, error) {
				return NewTarSink(fs, "out/"+name+".tar")
			},
		})
	}
	var (
		mu    sync.Mutex
		calls []int
	)
	bopts := BatchOptions{
		Workers: 3,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			if total != len(jobs) {
				t.Errorf("Progress total = %d, want %d", total, len(jobs))
			}
			calls = append(calls, done)
		},
	}
	err := DecomposeAll(context.Background(), jobs, Options{Factor: 3}, bopts)
	if err == nil {
		t.Fatalf("expected error from module without definitions")
	}
	if !strings.Contains(err.Error(), "chain3.ll") {
		t.Errorf("error %q not attributed to failing job", err)
	}
	if strings.Contains(err.Error(), "chain2.ll") {
		t.Errorf("error %q attributed to succeeding job", err)
	}
	if len(calls) != len(jobs) {
		t.Errorf("Progress called %d times, want %d", len(calls), len(jobs))
	}
	for i, done := range calls {
		if done != i+1 {
			t.Errorf("Progress call %d: done = %d, want %d", i, done, i+1)
		}
	}
	for i, job := range jobs {
		ok, _ := afero.Exists(fs, "out/"+job.Name+".tar")
		if want := i != 3; ok != want {
			t.Errorf("%s: archive exists = %v, want %v", job.Name, ok, want)
		}
	}
}

func TestDecomposeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loaded := false
	jobs := []Job{{
		Name: "chain.ll",
		Load: func() (*module.Module, error) {
			loaded = true
			return module.Parse("chain.ll", []byte(chainLL(3)))
		},
		Open: func() (Sink, error) {
			return newCollector(), nil
		},
	}}
	if err := DecomposeAll(ctx, jobs, Options{Factor: 3}, BatchOptions{}); err == nil {
		t.Errorf("expected error from cancelled context")
	}
	if loaded {
		t.Errorf("job started after cancellation")
	}
}
