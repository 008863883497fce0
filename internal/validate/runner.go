package validate

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/SakshiRa/neurotk/internal/dataset"
)

// Runner checks a dataset's entries with a bounded worker pool.
// Records are independent per file; the only shared step is the final
// order-independent fold done by the caller.
type Runner struct {
	Checker *Checker
	Workers int // 0 = CPU cores
	Quiet   bool
}

// Run checks every entry and returns records sorted by filename.
// Individual file failures surface as IssueCodes, never as errors.
func (r *Runner) Run(entries []dataset.Entry) []*FileRecord {
	if len(entries) == 0 {
		return []*FileRecord{}
	}

	numWorkers := r.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(entries) {
		numWorkers = len(entries)
	}

	if !r.Quiet {
		fmt.Printf("Checking %d files with %d parallel workers...\n", len(entries), numWorkers)
	}

	taskChan := make(chan dataset.Entry, len(entries))
	resultChan := make(chan *FileRecord, len(entries))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range taskChan {
				resultChan <- r.Checker.Check(e)
			}
		}()
	}

	for _, e := range entries {
		taskChan <- e
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	records := make([]*FileRecord, 0, len(entries))
	completed := 0
	for rec := range resultChan {
		records = append(records, rec)
		completed++
		if !r.Quiet && (completed%25 == 0 || completed == len(entries)) {
			fmt.Printf("  Progress: %d/%d\n", completed, len(entries))
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}
