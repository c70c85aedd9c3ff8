package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"epiworld.sim/internal/sim/database"
)

// SQLiteIndex is a queryable read model of finished batches. Writes go through a single
// goroutine; the per-replicate files remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropReplicateTotal     atomic.Uint64
	rollbackReplicateTotal atomic.Uint64
}

type reqKind int

const (
	reqReplicate reqKind = iota + 1
	reqFinish
)

type req struct {
	kind reqKind

	replicate replicateRows
	finish    finishRow
}

// Batch describes one invocation of the replicator.
type Batch struct {
	ID         string
	Name       string
	Scenario   string
	Replicates int
	Threads    int
	BaseSeed   int64
	Days       int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Replicate is the summary row of one finished replicate.
type Replicate struct {
	Batch        string
	Index        int
	Seed         int64
	Digest       string
	ElapsedMS    float64
	SnapshotPath string
}

type historyRow struct {
	day, status, count int
}

type replicateRows struct {
	Replicate
	statuses    []string
	history     []historyRow
	repnums     []database.RepNum
	transitions []database.TransitionCount
}

type finishRow struct {
	batch string
	at    time.Time
	done  chan struct{}
}

type Stats struct {
	QueueDepth         int
	QueueCapacity      int
	DropReplicateTotal uint64

	// RollbackReplicateTotal counts replicates lost to a failed transaction, including
	// those batched into it before the failing row.
	RollbackReplicateTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			scenario_json TEXT NOT NULL,
			replicates INTEGER NOT NULL,
			threads INTEGER NOT NULL,
			base_seed INTEGER NOT NULL,
			days INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS replicates (
			batch TEXT NOT NULL REFERENCES batches(id),
			idx INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			digest TEXT NOT NULL,
			elapsed_ms REAL NOT NULL,
			snapshot_path TEXT,
			PRIMARY KEY (batch, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			batch TEXT NOT NULL,
			idx INTEGER NOT NULL,
			day INTEGER NOT NULL,
			status TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (batch, idx, day, status)
		);`,
		`CREATE TABLE IF NOT EXISTS repnum (
			batch TEXT NOT NULL,
			idx INTEGER NOT NULL,
			variant INTEGER NOT NULL,
			source INTEGER NOT NULL,
			exposure_day INTEGER NOT NULL,
			rt INTEGER NOT NULL,
			PRIMARY KEY (batch, idx, variant, source, exposure_day)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_repnum_day ON repnum(batch, exposure_day);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			batch TEXT NOT NULL,
			idx INTEGER NOT NULL,
			day INTEGER NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (batch, idx, day, from_status, to_status)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropReplicateTotal: s.dropReplicateTotal.Load(),

		RollbackReplicateTotal: s.rollbackReplicateTotal.Load(),
	}
}

// RecordBatch inserts the batch row synchronously so replicate rows can reference it.
func (s *SQLiteIndex) RecordBatch(b Batch) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO batches(id,name,scenario_json,replicates,threads,base_seed,days,started_at) VALUES(?,?,?,?,?,?,?,?)`,
		b.ID, b.Name, b.Scenario, b.Replicates, b.Threads, b.BaseSeed, b.Days, b.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecordReplicate queues the replicate summary and its derived views.
func (s *SQLiteIndex) RecordReplicate(r Replicate, db *database.Database) {
	if s == nil || s.closed.Load() {
		return
	}
	rows := replicateRows{
		Replicate:   r,
		statuses:    db.StatusNames(),
		repnums:     db.ReproductiveNumbers(),
		transitions: db.TransitionCounts(),
	}
	for day, counts := range db.History() {
		for st, c := range counts {
			rows.history = append(rows.history, historyRow{day: day, status: st, count: c})
		}
	}
	select {
	case s.ch <- req{kind: reqReplicate, replicate: rows}:
	default:
		s.dropReplicateTotal.Add(1)
	}
}

// FinishBatch stamps the batch as finished and returns once every replicate queued
// before it is committed.
func (s *SQLiteIndex) FinishBatch(batch string, at time.Time) {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFinish, finish: finishRow{batch: batch, at: at, done: done}}
	<-done
}

func statusName(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprint(i)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertReplicate, _ := s.db.Prepare(`INSERT OR REPLACE INTO replicates(batch,idx,seed,digest,elapsed_ms,snapshot_path) VALUES(?,?,?,?,?,?)`)
	insertHistory, _ := s.db.Prepare(`INSERT OR REPLACE INTO history(batch,idx,day,status,count) VALUES(?,?,?,?,?)`)
	insertRepnum, _ := s.db.Prepare(`INSERT OR REPLACE INTO repnum(batch,idx,variant,source,exposure_day,rt) VALUES(?,?,?,?,?,?)`)
	insertTransition, _ := s.db.Prepare(`INSERT OR REPLACE INTO transitions(batch,idx,day,from_status,to_status,count) VALUES(?,?,?,?,?,?)`)
	updateFinish, _ := s.db.Prepare(`UPDATE batches SET finished_at=? WHERE id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertReplicate, insertHistory, insertRepnum, insertTransition, updateFinish} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 20000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.rollbackReplicateTotal.Add(uint64(pending))
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.rollbackReplicateTotal.Add(uint64(pending))
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			rollback()
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			if r.kind == reqFinish {
				close(r.finish.done)
			}
			continue
		}
		switch r.kind {
		case reqReplicate:
			rr := r.replicate
			var snap any
			if rr.SnapshotPath != "" {
				snap = rr.SnapshotPath
			}
			pending++
			if !exec(insertReplicate, rr.Batch, rr.Index, rr.Seed, rr.Digest, rr.ElapsedMS, snap) {
				continue
			}
			ok := true
			for _, h := range rr.history {
				if ok = exec(insertHistory, rr.Batch, rr.Index, h.day, statusName(rr.statuses, h.status), h.count); !ok {
					break
				}
			}
			for _, rn := range rr.repnums {
				if !ok {
					break
				}
				ok = exec(insertRepnum, rr.Batch, rr.Index, rn.Variant, rn.Source, rn.ExposureDay, rn.Count)
			}
			for _, tc := range rr.transitions {
				if !ok {
					break
				}
				ok = exec(insertTransition, rr.Batch, rr.Index, tc.Day,
					statusName(rr.statuses, tc.From), statusName(rr.statuses, tc.To), tc.Count)
			}

		case reqFinish:
			exec(updateFinish, r.finish.at.UTC().Format(time.RFC3339Nano), r.finish.batch)
			commit()
			close(r.finish.done)
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
