// Package proc answers questions about the OS process table: whether a PID
// is live, when it was created, and what it currently costs.
package proc

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a point-in-time resource snapshot of one process.
type Stats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	MemoryMB   uint64  `json:"memory_mb"`
	Threads    int32   `json:"threads"`
	Status     string  `json:"status,omitempty"`
}

// Valid reports whether pid can name a process harbor started. Init and
// anything that does not fit the kernel's PID type never qualify.
func Valid(pid int) bool {
	return pid > 1 && pid <= math.MaxInt32
}

// Alive reports whether pid is in the process table and is not a zombie.
func Alive(ctx context.Context, pid int) bool {
	if !Valid(pid) {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !ok {
		return false
	}
	return !isZombie(ctx, pid)
}

// CreateTime returns the creation time of pid in unix milliseconds.
func CreateTime(ctx context.Context, pid int) (int64, error) {
	if !Valid(pid) {
		return 0, errors.Errorf("invalid PID %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, errors.Wrap(err, "lookup process")
	}
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "read create time")
	}
	return ms, nil
}

// Matches reports whether pid is alive and is still the process that was
// created at createTime. A zero createTime skips the identity check, which
// leaves the caller exposed to PID reuse.
func Matches(ctx context.Context, pid int, createTime int64) bool {
	if !Alive(ctx, pid) {
		return false
	}
	if createTime == 0 {
		return true
	}
	cur, err := CreateTime(ctx, pid)
	if err != nil {
		return false
	}
	return cur == createTime
}

// ReadStats samples CPU, memory and thread usage for pid.
func ReadStats(ctx context.Context, pid int) (*Stats, error) {
	if !Valid(pid) {
		return nil, errors.Errorf("invalid PID %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, errors.Wrap(err, "lookup process")
	}

	stats := &Stats{PID: pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSS = mem.RSS
		stats.MemoryMB = mem.RSS / (1024 * 1024)
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = n
	}
	if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
		stats.Status = strings.Join(st, ",")
	}
	return stats, nil
}

// ReadAllStats samples every live pid; processes that vanish mid-read are
// skipped.
func ReadAllStats(ctx context.Context, pids []int) map[int]*Stats {
	out := make(map[int]*Stats, len(pids))
	for _, pid := range pids {
		s, err := ReadStats(ctx, pid)
		if err != nil {
			continue
		}
		out[pid] = s
	}
	return out
}

func isZombie(ctx context.Context, pid int) bool {
	if !Valid(pid) {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	st, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	for _, s := range st {
		if s == process.Zombie {
			return true
		}
	}
	return false
}
