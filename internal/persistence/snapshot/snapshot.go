package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	Model     string `json:"model"`
	Replicate int    `json:"replicate"`
	Seed      uint64 `json:"seed"`
	Days      int    `json:"days"`
	Digest    string `json:"digest,omitempty"`
}

// DatabaseV1 holds the append-only logs of one replicate. Every derived view can be
// recomputed from it without re-running the simulation.
type DatabaseV1 struct {
	Header Header `json:"header"`

	StatusNames  []string `json:"status_names"`
	VariantNames []string `json:"variant_names"`
	ToolNames    []string `json:"tool_names"`

	History        [][]int   `json:"history"`
	VariantHistory [][][]int `json:"variant_history,omitempty"`
	ToolHistory    [][][]int `json:"tool_history,omitempty"`

	Transmissions []TransmissionV1 `json:"transmissions"`
	Transitions   []TransitionV1   `json:"transitions"`
}

type TransmissionV1 struct {
	Day     int `json:"day"`
	Source  int `json:"source"`
	Target  int `json:"target"`
	Variant int `json:"variant"`
}

type TransitionV1 struct {
	Day   int `json:"day"`
	Agent int `json:"agent"`
	From  int `json:"from"`
	To    int `json:"to"`
}

func WriteSnapshot(path string, snap DatabaseV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadHeader returns only the JSON header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (DatabaseV1, error) {
	var snap DatabaseV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is duplicated inside the gob body.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
