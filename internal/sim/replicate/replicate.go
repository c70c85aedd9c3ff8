// Package replicate runs independent replicates of a configured model on a worker pool.
package replicate

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "epiworld.sim/internal/persistence/log"
	"epiworld.sim/internal/persistence/snapshot"
	"epiworld.sim/internal/persistence/tables"
	"epiworld.sim/internal/sim/model"
	"epiworld.sim/internal/sim/rng"
)

// SaveRun selects the per-replicate artifacts written to Dir. File names start with
// Pattern formatted with the replicate index.
type SaveRun struct {
	Dir      string
	Pattern  string
	Tables   tables.Selection
	Snapshot bool
	DayLog   bool
}

const DefaultPattern = "rep-%03d"

func (s *SaveRun) prefix(i int) string {
	p := s.Pattern
	if p == "" {
		p = DefaultPattern
	}
	return fmt.Sprintf(p, i)
}

// Result is handed to the After callback once a replicate finishes.
type Result struct {
	Index   int
	Seed    int64
	Model   *model.Model
	Digest  string
	Elapsed time.Duration
	Files   []string
}

// ProgressEvent is emitted every time a replicate finishes, in completion order.
type ProgressEvent struct {
	Done      int
	Total     int
	Replicate int
	Seed      int64
	Digest    string
	Elapsed   time.Duration
	// Counts holds the replicate's status counts on its last day.
	Counts []int
}

// Replicator runs Count replicates of a model using at most Threads goroutines. Replicate i
// is seeded with rng.SeedFor(BaseSeed, i), so results do not depend on Threads.
type Replicator struct {
	Count    int
	Threads  int
	BaseSeed int64
	// Days overrides the horizon of the base model when positive.
	Days int

	// After is called once per replicate in index order. Calls never overlap.
	After    func(r Result) error
	Progress func(ev ProgressEvent)
	Save     *SaveRun
	Logger   *log.Logger
}

// Run validates base and executes the batch. The first failing replicate cancels the rest
// and its error is returned.
func (r *Replicator) Run(ctx context.Context, base *model.Model) error {
	if r.Count <= 0 {
		return fmt.Errorf("replicate: count must be > 0")
	}
	if err := base.Validate(); err != nil {
		return err
	}
	days := r.Days
	if days <= 0 {
		days = base.Days()
	}
	threads := r.Threads
	if threads <= 0 {
		threads = 1
	}

	var (
		mu      sync.Mutex
		done    int
		next    int
		pending = map[int]Result{}
	)
	deliver := func(res Result) error {
		mu.Lock()
		defer mu.Unlock()
		done++
		if r.Progress != nil {
			r.Progress(ProgressEvent{
				Done:      done,
				Total:     r.Count,
				Replicate: res.Index,
				Seed:      res.Seed,
				Digest:    res.Digest,
				Elapsed:   res.Elapsed,
				Counts:    lastDay(res.Model),
			})
		}
		if r.Logger != nil {
			r.Logger.Printf("replicate %d/%d done (index=%d seed=%d elapsed=%s)", done, r.Count, res.Index, res.Seed, res.Elapsed.Round(time.Microsecond))
		}
		pending[res.Index] = res
		for {
			ready, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			next++
			if r.After != nil {
				if err := r.After(ready); err != nil {
					return fmt.Errorf("replicate %d: after: %w", ready.Index, err)
				}
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i := 0; i < r.Count; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.runOne(base, i, days)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", i, err)
			}
			return deliver(res)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Replicator) runOne(base *model.Model, i, days int) (Result, error) {
	m := base.Clone()
	seed := int64(rng.SeedFor(r.BaseSeed, i))
	res := Result{Index: i, Seed: seed, Model: m}

	var dayLog *persistlog.DayLogger
	if r.Save != nil && r.Save.DayLog {
		path := filepath.Join(r.Save.Dir, r.Save.prefix(i)+"_days.jsonl.zst")
		dayLog = persistlog.NewDayLogger(path)
		m.SetDayLogger(dayLog)
		res.Files = append(res.Files, path)
	}

	start := time.Now()
	err := m.Init(days, seed)
	if err == nil {
		err = m.Run()
	}
	res.Elapsed = time.Since(start)
	if dayLog != nil {
		if cerr := dayLog.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("day log: %w", cerr)
		}
	}
	if err != nil {
		return res, err
	}
	res.Digest = m.DB().Digest()

	if r.Save != nil {
		files, err := r.save(m, i, seed)
		res.Files = append(res.Files, files...)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Replicator) save(m *model.Model, i int, seed int64) ([]string, error) {
	s := r.Save
	prefix := s.prefix(i)
	files, err := tables.Save(s.Dir, prefix, m.DB(), s.Tables)
	if err != nil {
		return files, err
	}
	if s.Snapshot {
		path := filepath.Join(s.Dir, prefix+".snap.zst")
		snap := m.DB().ExportSnapshot(snapshot.Header{
			Model:     m.Name(),
			Replicate: i,
			Seed:      uint64(seed),
			Days:      m.Days(),
		})
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return files, fmt.Errorf("snapshot: %w", err)
		}
		files = append(files, path)
	}
	return files, nil
}

func lastDay(m *model.Model) []int {
	h := m.DB().History()
	if len(h) == 0 {
		return nil
	}
	return append([]int(nil), h[len(h)-1]...)
}
