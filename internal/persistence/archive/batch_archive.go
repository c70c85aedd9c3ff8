package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

type BatchMeta struct {
	Batch      string          `json:"batch"`
	Model      string          `json:"model"`
	BaseSeed   int64           `json:"base_seed"`
	Days       int             `json:"days"`
	Threads    int             `json:"threads"`
	Scenario   string          `json:"scenario,omitempty"`
	CreatedAt  string          `json:"created_at"`
	Replicates []ReplicateMeta `json:"replicates"`
}

type ReplicateMeta struct {
	Index  int      `json:"index"`
	Seed   int64    `json:"seed"`
	Digest string   `json:"digest"`
	Files  []string `json:"files,omitempty"`
}

// ArchiveBatch finalizes `batchDir`: the scenario file is copied next to the replicate
// outputs and meta.json lists every replicate with its seed and digest. File paths are
// stored relative to batchDir.
func ArchiveBatch(batchDir, scenarioPath string, meta BatchMeta) (metaPath string, err error) {
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return "", err
	}
	if scenarioPath != "" {
		dst := filepath.Join(batchDir, "scenario"+filepath.Ext(scenarioPath))
		if err := copyFile(scenarioPath, dst); err != nil {
			return "", fmt.Errorf("archive scenario: %w", err)
		}
		meta.Scenario = filepath.Base(dst)
	}
	reps := make([]ReplicateMeta, len(meta.Replicates))
	for i, r := range meta.Replicates {
		files := make([]string, len(r.Files))
		for j, f := range r.Files {
			files[j] = f
			if rel, err := filepath.Rel(batchDir, f); err == nil {
				files[j] = filepath.ToSlash(rel)
			}
		}
		r.Files = files
		reps[i] = r
	}
	meta.Replicates = reps
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	metaPath = filepath.Join(batchDir, "meta.json")
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", err
	}
	return metaPath, nil
}

func ReadBatchMeta(batchDir string) (BatchMeta, error) {
	var meta BatchMeta
	b, err := os.ReadFile(filepath.Join(batchDir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("meta.json: %w", err)
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
