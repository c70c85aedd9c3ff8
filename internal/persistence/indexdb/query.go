package indexdb

import (
	"database/sql"
	"time"
)

// Batches lists indexed batches, newest first.
func (s *SQLiteIndex) Batches() ([]Batch, error) {
	rows, err := s.db.Query(`SELECT id,name,scenario_json,replicates,threads,base_seed,days,started_at,finished_at FROM batches ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		var (
			b        Batch
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Scenario, &b.Replicates, &b.Threads, &b.BaseSeed, &b.Days, &started, &finished); err != nil {
			return nil, err
		}
		b.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			b.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Replicates(batch string) ([]Replicate, error) {
	rows, err := s.db.Query(`SELECT batch,idx,seed,digest,elapsed_ms,COALESCE(snapshot_path,'') FROM replicates WHERE batch=? ORDER BY idx`, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Replicate
	for rows.Next() {
		var r Replicate
		if err := rows.Scan(&r.Batch, &r.Index, &r.Seed, &r.Digest, &r.ElapsedMS, &r.SnapshotPath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatusMean is the mean count of a status on a day across a batch's replicates.
type StatusMean struct {
	Day    int
	Status string
	Mean   float64
}

func (s *SQLiteIndex) MeanHistory(batch string) ([]StatusMean, error) {
	rows, err := s.db.Query(`SELECT day,status,AVG(count) FROM history WHERE batch=? GROUP BY day,status ORDER BY day,status`, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusMean
	for rows.Next() {
		var m StatusMean
		if err := rows.Scan(&m.Day, &m.Status, &m.Mean); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MeanReproductive averages R over sources grouped by exposure day.
func (s *SQLiteIndex) MeanReproductive(batch string) (map[int]float64, error) {
	rows, err := s.db.Query(`SELECT exposure_day,AVG(rt) FROM repnum WHERE batch=? AND exposure_day>=0 GROUP BY exposure_day ORDER BY exposure_day`, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]float64{}
	for rows.Next() {
		var (
			day  int
			mean float64
		)
		if err := rows.Scan(&day, &mean); err != nil {
			return nil, err
		}
		out[day] = mean
	}
	return out, rows.Err()
}
