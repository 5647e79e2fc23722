package fingerprint

import (
	"context"
	"runtime"
	"sync"
)

// ComputeAll fingerprints a set of named bytecode images using a pool of
// workers. Fingerprinting is pure so no coordination beyond collecting the
// results is required. A worker count of zero or less uses the number of
// CPUs. Work stops early when the context is cancelled.
func ComputeAll(ctx context.Context, codes map[string][]byte, workers int) (map[string]Fingerprint, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type result struct {
		name string
		fp   Fingerprint
	}

	names := make(chan string)
	results := make(chan result, len(codes))

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for name := range names {
				results <- result{name: name, fp: Compute(codes[name])}
			}
		}()
	}

	var err error

feed:
	for name := range codes {
		select {
		case names <- name:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(names)

	wg.Wait()
	close(results)

	if err != nil {
		return nil, err
	}

	fps := make(map[string]Fingerprint, len(codes))
	for r := range results {
		fps[r.name] = r.fp
	}

	return fps, nil
}
