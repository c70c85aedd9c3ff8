package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"epiworld.sim/internal/observerproto"
	"epiworld.sim/internal/persistence/archive"
	"epiworld.sim/internal/persistence/indexdb"
	persistlog "epiworld.sim/internal/persistence/log"
	"epiworld.sim/internal/report"
	"epiworld.sim/internal/sim/replicate"
	"epiworld.sim/internal/sim/scenario"
	"epiworld.sim/internal/sim/tuning"
	"epiworld.sim/internal/transport/observer"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a batch of replicates of a scenario",
		Long: `Build the model described by a scenario file, run it the configured number of
times and print a summary of the batch.

Examples:
  epiworld run configs/seir.yaml
  epiworld run configs/seir.yaml --replicates 100 --threads 8
  epiworld run configs/seir.yaml --out ./data --listen 127.0.0.1:8070`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tuning.Load(args[0])
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, &t); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(ctx, cmd, newLogger(), args[0], t)
		},
	}
	cmd.Flags().Int("replicates", 0, "number of replicates (overrides the scenario)")
	cmd.Flags().Int("threads", 0, "worker goroutines (overrides the scenario)")
	cmd.Flags().Int64("seed", 0, "base seed (overrides the scenario)")
	cmd.Flags().Int("days", 0, "days per replicate (overrides the scenario)")
	cmd.Flags().String("out", "", "output directory (overrides the scenario)")
	cmd.Flags().String("index", "", "sqlite index path (overrides the scenario)")
	cmd.Flags().String("listen", "", "observer listen address, loopback only (overrides the scenario)")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, t *tuning.Tuning) error {
	f := cmd.Flags()
	if f.Changed("replicates") {
		t.Replicates, _ = f.GetInt("replicates")
	}
	if f.Changed("threads") {
		t.Threads, _ = f.GetInt("threads")
	}
	if f.Changed("seed") {
		t.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("days") {
		t.Days, _ = f.GetInt("days")
	}
	if f.Changed("out") {
		t.Output.Dir, _ = f.GetString("out")
	}
	if f.Changed("index") {
		t.Index.Path, _ = f.GetString("index")
	}
	if f.Changed("listen") {
		t.Observer.Listen, _ = f.GetString("listen")
	}
	t.Normalize()
	return t.Validate()
}

func runBatch(ctx context.Context, cmd *cobra.Command, logger *log.Logger, scenarioPath string, t tuning.Tuning) error {
	m, err := scenario.Build(t)
	if err != nil {
		return err
	}
	batchID := uuid.NewString()
	started := time.Now()
	logger.Printf("batch %s: model=%q agents=%d days=%d replicates=%d threads=%d seed=%d",
		batchID, m.Name(), m.Size(), t.Days, t.Replicates, t.Threads, t.Seed)

	rep := &replicate.Replicator{
		Count:    t.Replicates,
		Threads:  t.Threads,
		BaseSeed: t.Seed,
		Days:     t.Days,
		Logger:   logger,
	}

	var (
		outDir   string
		batchLog *persistlog.BatchLogger
	)
	if t.Output.Dir != "" {
		outDir = filepath.Join(t.Output.Dir, batchID)
		rep.Save = &replicate.SaveRun{
			Dir:      outDir,
			Pattern:  t.Output.Pattern,
			Tables:   t.Output.Tables,
			Snapshot: t.Output.Snapshot,
			DayLog:   t.Output.DayLog,
		}
		batchLog = persistlog.NewBatchLogger(outDir)
		defer batchLog.Close()
	}

	var idx *indexdb.SQLiteIndex
	if t.Index.Path != "" {
		idx, err = indexdb.OpenSQLite(t.Index.Path)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		scn, _ := json.Marshal(t)
		if err := idx.RecordBatch(indexdb.Batch{
			ID:         batchID,
			Name:       t.Name,
			Scenario:   string(scn),
			Replicates: t.Replicates,
			Threads:    t.Threads,
			BaseSeed:   t.Seed,
			Days:       t.Days,
			StartedAt:  started,
		}); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}

	var obs *observer.Server
	if t.Observer.Listen != "" {
		obs = observer.NewServer(observerproto.BatchInfo{
			ID:         batchID,
			Model:      m.Name(),
			Population: m.Size(),
			Days:       t.Days,
			Replicates: t.Replicates,
			Threads:    t.Threads,
			BaseSeed:   t.Seed,
			Statuses:   m.StatusNames(),
		}, logger)
		stopObs, err := serveObserver(t.Observer.Listen, obs, logger)
		if err != nil {
			return err
		}
		defer stopObs()
		rep.Progress = obs.Publish
	}

	curves := report.NewCurves(m.StatusNames())
	var archived []archive.ReplicateMeta
	rep.After = func(res replicate.Result) error {
		db := res.Model.DB()
		curves.Add(db)
		archived = append(archived, archive.ReplicateMeta{Index: res.Index, Seed: res.Seed, Digest: res.Digest, Files: res.Files})
		_, totals := db.TodayTotals()
		if batchLog != nil {
			if err := batchLog.WriteReplicate(persistlog.ReplicateEntry{
				Batch:     batchID,
				Replicate: res.Index,
				Seed:      res.Seed,
				Days:      res.Model.Days(),
				Digest:    res.Digest,
				Totals:    totals,
				ElapsedMS: float64(res.Elapsed.Microseconds()) / 1000,
			}); err != nil {
				return fmt.Errorf("batch log: %w", err)
			}
		}
		idx.RecordReplicate(indexdb.Replicate{
			Batch:        batchID,
			Index:        res.Index,
			Seed:         res.Seed,
			Digest:       res.Digest,
			ElapsedMS:    float64(res.Elapsed.Microseconds()) / 1000,
			SnapshotPath: snapshotFile(res.Files),
		}, db)
		return nil
	}

	runErr := rep.Run(ctx, m)
	elapsed := time.Since(started)
	if obs != nil {
		obs.Finish(runErr)
	}
	idx.FinishBatch(batchID, time.Now())
	if idx != nil {
		st := idx.Stats()
		if st.DropReplicateTotal > 0 {
			logger.Printf("index: dropped %d replicate rows (queue full)", st.DropReplicateTotal)
		}
		if st.RollbackReplicateTotal > 0 {
			logger.Printf("index: lost %d replicate rows (transaction rolled back)", st.RollbackReplicateTotal)
		}
	}
	if runErr != nil {
		return runErr
	}

	if curves.Replicates() == 0 {
		return nil
	}
	if outDir != "" {
		metaPath, err := archive.ArchiveBatch(outDir, scenarioPath, archive.BatchMeta{
			Batch:      batchID,
			Model:      m.Name(),
			BaseSeed:   t.Seed,
			Days:       t.Days,
			Threads:    t.Threads,
			Replicates: archived,
		})
		if err != nil {
			return err
		}
		logger.Printf("batch %s archived: %s", batchID, metaPath)
	}
	if t.Output.Chart && outDir != "" {
		path := filepath.Join(outDir, "curves.png")
		if err := report.WriteCurvesPNG(path, curves, m.Name()); err != nil {
			return err
		}
		logger.Printf("chart: %s", path)
	}

	sum := report.NewSummary(m, curves, t.Threads, elapsed)
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	_, err = sum.WriteTo(cmd.OutOrStdout())
	return err
}

func snapshotFile(files []string) string {
	for _, f := range files {
		if strings.HasSuffix(f, ".snap.zst") {
			return f
		}
	}
	return ""
}

// serveObserver starts the observer HTTP server and returns a function that shuts it down.
func serveObserver(addr string, obs *observer.Server, logger *log.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("observer listen: %w", err)
	}
	srv := &http.Server{
		Handler:           obs.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("observer: %v", err)
		}
	}()
	logger.Printf("observer listening on %s", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
