package resource

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Sampler reads host resource usage. Faked in tests; the real implementation
// reads /proc and statfs.
type Sampler interface {
	// LoadAvg returns the 1, 5, and 15 minute load averages.
	LoadAvg() (load1, load5, load15 float64, err error)
	// Memory returns total and available memory in megabytes.
	Memory() (totalMB, availableMB float64, err error)
	// Disk returns total and free bytes for the filesystem at path.
	Disk(path string) (totalBytes, freeBytes uint64, err error)
}

// ProcSampler reads resource usage from the Linux proc filesystem.
type ProcSampler struct {
	// Root overrides "/proc" in tests.
	Root string
}

func (s *ProcSampler) procPath(name string) string {
	root := s.Root
	if root == "" {
		root = "/proc"
	}
	return root + "/" + name
}

// LoadAvg parses /proc/loadavg.
func (s *ProcSampler) LoadAvg() (float64, float64, float64, error) {
	raw, err := os.ReadFile(s.procPath("loadavg"))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reading loadavg: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("malformed loadavg: %q", strings.TrimSpace(string(raw)))
	}
	vals := make([]float64, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parsing loadavg field %q: %w", fields[i], err)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// Memory parses MemTotal and MemAvailable from /proc/meminfo.
func (s *ProcSampler) Memory() (float64, float64, error) {
	raw, err := os.ReadFile(s.procPath("meminfo"))
	if err != nil {
		return 0, 0, fmt.Errorf("reading meminfo: %w", err)
	}

	var totalKB, availKB float64
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, 0, fmt.Errorf("meminfo missing MemTotal")
	}
	return totalKB / 1024, availKB / 1024, nil
}

// Disk calls statfs on the mount point.
func (s *ProcSampler) Disk(path string) (uint64, uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
