package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadEdgelist adds one tie per "from to" line of r. The first skip lines are ignored, as
// are blank lines and lines starting with '#'. When max > 0 at most max ties are read.
func (m *Model) ReadEdgelist(r io.Reader, skip, max int) error {
	n := 0
	return scanPairs(r, skip, "edgelist", func(line, from, to int) error {
		if max > 0 && n >= max {
			return errStopScan
		}
		n++
		if err := m.AddEdge(from, to); err != nil {
			return &ConfigError{Field: "edgelist", Reason: fmt.Sprintf("line %d: %d-%d out of range", line, from, to)}
		}
		return nil
	})
}

// ReadEntityTies reads "agent entity" lines. Entity ids index the model's entities; ids
// past the last registered entity create unbounded entities named "entity-<id>".
func (m *Model) ReadEntityTies(r io.Reader, skip int) error {
	return scanPairs(r, skip, "entity ties", func(line, agent, entity int) error {
		if entity < 0 {
			return &ConfigError{Field: "entity ties", Reason: fmt.Sprintf("line %d: negative entity id %d", line, entity)}
		}
		for len(m.entities) <= entity {
			m.AddEntity(fmt.Sprintf("entity-%d", len(m.entities)), 0)
		}
		if err := m.AddToEntity(agent, entity); err != nil {
			return fmt.Errorf("entity ties: line %d: %w", line, err)
		}
		return nil
	})
}

var errStopScan = errors.New("stop scan")

func scanPairs(r io.Reader, skip int, field string, fn func(line, a, b int) error) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line <= skip {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f := strings.Fields(text)
		if len(f) < 2 {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("line %d: want two ids, got %q", line, text)}
		}
		a, err1 := strconv.Atoi(f[0])
		b, err2 := strconv.Atoi(f[1])
		if err1 != nil || err2 != nil {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("line %d: ids must be integers, got %q", line, text)}
		}
		if err := fn(line, a, b); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
