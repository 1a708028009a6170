// Package analytics aggregates bot, ledger and host statistics for the
// admin API and the /stats command.
package analytics

import (
	"context"
	"runtime"
	"time"

	"spanner/internal/storage"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

type Store interface {
	CountGuilds(ctx context.Context) (int, error)
	CountCasesByType(ctx context.Context) (map[storage.CaseType]int, error)
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
	CountOpenPolls(ctx context.Context) (int, error)
	CountErrorRecords(ctx context.Context) (int, error)
}

// Runtime reports live gateway figures. The bot implements it.
type Runtime interface {
	GuildCount() int
	Latency() time.Duration
}

type Service struct {
	store   Store
	runtime Runtime
	logger  *zap.Logger
	started time.Time
	now     func() time.Time
}

func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, started: time.Now(), now: time.Now}
}

// SetRuntime attaches the live gateway once the bot is running.
func (s *Service) SetRuntime(rt Runtime) {
	s.runtime = rt
}

type Report struct {
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"by_level"`
}

type Host struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryTotal uint64  `json:"memory_total"`
	Goroutines  int     `json:"goroutines"`
}

type Snapshot struct {
	Guilds        int            `json:"guilds"`
	KnownGuilds   int            `json:"known_guilds"`
	LatencyMS     int64          `json:"latency_ms"`
	StartedAt     time.Time      `json:"started_at"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Cases         map[string]int `json:"cases"`
	Audit         Report         `json:"audit_24h"`
	OpenPolls     int            `json:"open_polls"`
	ErrorRecords  int            `json:"error_records"`
	Host          Host           `json:"host"`
}

// Report counts audit entries per level since the given time. An empty
// guildID covers every guild.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
	}
	return report, nil
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	now := s.now()
	snap := Snapshot{
		StartedAt:     s.started.UTC(),
		UptimeSeconds: int64(now.Sub(s.started).Seconds()),
		Cases:         make(map[string]int),
	}
	if s.runtime != nil {
		snap.Guilds = s.runtime.GuildCount()
		snap.LatencyMS = s.runtime.Latency().Milliseconds()
	}

	var err error
	if snap.KnownGuilds, err = s.store.CountGuilds(ctx); err != nil {
		return Snapshot{}, err
	}
	counts, err := s.store.CountCasesByType(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for caseType, n := range counts {
		snap.Cases[caseType.String()] = n
	}
	if snap.Audit, err = s.Report(ctx, "", now.Add(-24*time.Hour)); err != nil {
		return Snapshot{}, err
	}
	if snap.OpenPolls, err = s.store.CountOpenPolls(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.ErrorRecords, err = s.store.CountErrorRecords(ctx); err != nil {
		return Snapshot{}, err
	}
	snap.Host = s.host(ctx)
	return snap, nil
}

// host reads process and machine figures. Failures leave the fields zero.
func (s *Service) host(ctx context.Context) Host {
	h := Host{Goroutines: runtime.NumGoroutine()}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		h.CPUPercent = percents[0]
	} else if err != nil {
		s.logger.Debug("read cpu usage failed", zap.Error(err))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryUsed = vm.Used
		h.MemoryTotal = vm.Total
	} else {
		s.logger.Debug("read memory usage failed", zap.Error(err))
	}
	return h
}
