package engine

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MemoryProbe reports available system memory in MiB.
type MemoryProbe interface {
	AvailableMB() (int64, error)
}

// ProcMeminfo reads MemAvailable from a meminfo file (Linux /proc/meminfo by default).
type ProcMeminfo struct {
	Path string
}

// AvailableMB implements MemoryProbe.
func (p ProcMeminfo) AvailableMB() (int64, error) {
	path := p.Path
	if path == "" {
		path = "/proc/meminfo"
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse MemAvailable: %w", err)
		}
		return kb / 1024, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not found in %s", path)
}
