package reaction

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("profiler", newProfilerReaction)
}

// ProfilerConfig is the profiler reaction's declarative config payload: on
// a cron schedule, it samples host CPU/memory usage and logs it alongside
// the current result-delta throughput, useful for capacity diagnosis
// during load testing of a query.
type ProfilerConfig struct {
	Schedule string // standard 5-field cron expression
}

// ProfilerReaction doesn't act on delta contents; it counts result rows
// (added, updated and deleted) between cron ticks and reports host resource
// usage next to that throughput.
type ProfilerReaction struct {
	id  string
	cfg ProfilerConfig
	log *logging.Logger
	cr  *cron.Cron

	mu        sync.Mutex
	sinceTick uint64
}

func newProfilerReaction(id string, properties map[string]any) (Handler, error) {
	cfg := ProfilerConfig{Schedule: "@every 30s"}
	if v, ok := properties["schedule"].(string); ok && v != "" {
		cfg.Schedule = v
	}
	return &ProfilerReaction{id: id, cfg: cfg, log: logging.NewDefault("reaction." + id)}, nil
}

func (p *ProfilerReaction) Start(ctx context.Context, deltas <-chan model.ResultDelta) error {
	p.cr = cron.New()
	if _, err := p.cr.AddFunc(p.cfg.Schedule, p.sample); err != nil {
		return err
	}
	p.cr.Start()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				p.mu.Lock()
				p.sinceTick += uint64(len(d.Added) + len(d.Updated) + len(d.Deleted))
				p.mu.Unlock()
			}
		}
	}()
	return nil
}

func (p *ProfilerReaction) sample() {
	p.mu.Lock()
	count := p.sinceTick
	p.sinceTick = 0
	p.mu.Unlock()

	percents, _ := cpu.Percent(0, false)
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	vm, _ := mem.VirtualMemory()
	var memPct float64
	if vm != nil {
		memPct = vm.UsedPercent
	}

	p.log.WithFields(map[string]any{
		"rows_since_tick": count,
		"cpu_percent":     cpuPct,
		"mem_percent":     memPct,
	}).Info("profile sample")
}

func (p *ProfilerReaction) Stop(ctx context.Context) error {
	if p.cr != nil {
		<-p.cr.Stop().Done()
	}
	return nil
}
