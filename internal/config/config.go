// Package config reads the manager's startup sync-pair file: one pair
// per line, each equivalent to an `add` issued at startup.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/haldring/syncd/internal/dispatch"
)

// Pair is one parsed line: a source and target directory spec.
type Pair struct {
	Source dispatch.DirSpec
	Target dispatch.DirSpec
}

// Load reads path and parses every non-blank, non-comment line as
// "<source_dir>@<source_host>:<source_port> <target_dir>@<target_host>:<target_port>".
// A stdlib-only reader is used deliberately here: this is a trivial
// line-oriented grammar with no nesting, no multiple documents and no
// need for a structured marker format, so pulling in a YAML/TOML
// library (as the rest of the stack does for logging, CLI, HTTP,
// metrics, storage) would add a dependency with nothing to justify it.
func Load(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads sync pairs from r, applying the same grammar as Load.
func Parse(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("config line %d: expected 2 fields, got %d: %q", lineNo, len(fields), line)
		}
		src, err := dispatch.ParseDirSpec(fields[0])
		if err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNo, err)
		}
		dst, err := dispatch.ParseDirSpec(fields[1])
		if err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNo, err)
		}
		pairs = append(pairs, Pair{Source: src, Target: dst})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return pairs, nil
}
