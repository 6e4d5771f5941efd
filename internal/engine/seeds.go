package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/IshaanNene/gleaner/internal/types"
)

// ErrNoSeeds is returned when neither the command line nor the configuration
// supplies a seed.
var ErrNoSeeds = errors.New("no seeds given")

// ReadSeeds reads a line-delimited seed file. Blank lines and lines starting
// with '#' are ignored. A missing file is a configuration error.
func ReadSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.ConfigError{Field: "enumerate.seeds_file", Err: err}
	}
	defer f.Close()

	seeds, err := ParseSeeds(f)
	if err != nil {
		return nil, &types.ConfigError{Field: "enumerate.seeds_file", Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return seeds, nil
}

// ParseSeeds reads seeds from r, one per line.
func ParseSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	return seeds, scanner.Err()
}

// CollectSeeds merges inline seeds, configured seeds and the seed file, in
// that order.
func CollectSeeds(args, configured []string, seedsFile string) ([]string, error) {
	seeds := make([]string, 0, len(args)+len(configured))
	seeds = append(seeds, args...)
	seeds = append(seeds, configured...)
	if seedsFile != "" {
		fromFile, err := ReadSeeds(seedsFile)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		return nil, &types.ConfigError{Field: "enumerate.seeds", Err: ErrNoSeeds}
	}
	return seeds, nil
}
