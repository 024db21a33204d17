package inference

import (
	"context"
	"sync"

	"github.com/samcharles93/treebeam/internal/beam"
)

// Job is one independent decoding session: its own scorer state and its own
// structural start state. Sessions share nothing, so a batch parallelizes
// freely.
type Job struct {
	Scorer  Scorer
	Initial beam.Constraint
}

// JobResult pairs a job's outcome with its input position.
type JobResult struct {
	Index  int
	Result Result
	Err    error
}

// RunBatch decodes the jobs on a bounded worker pool and returns results in
// input order. A failed job reports its error in its slot; the rest of the
// batch is unaffected. Cancelling the context stops workers between steps.
func RunBatch(ctx context.Context, jobs []Job, workers int, cfg Config) []JobResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]JobResult, len(jobs))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				res, err := Run(ctx, jobs[i].Scorer, jobs[i].Initial, cfg)
				results[i] = JobResult{Index: i, Result: res, Err: err}
			}
		}()
	}

	for i := range jobs {
		work <- i
	}
	close(work)
	wg.Wait()

	return results
}
