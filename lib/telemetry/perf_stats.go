package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// PerfStatsInterval is how often InstrumentPerfStats samples the process.
var PerfStatsInterval = 30 * time.Second

type perfGauges struct {
	cpu        metric.Float64Gauge
	rss        metric.Int64Gauge
	heap       metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func newPerfGauges(meter metric.Meter) (perfGauges, error) {
	var g perfGauges
	var err error
	if g.cpu, err = meter.Float64Gauge("process.cpu.percent"); err != nil {
		return g, err
	}
	if g.rss, err = meter.Int64Gauge("process.memory.rss", metric.WithUnit("By")); err != nil {
		return g, err
	}
	if g.heap, err = meter.Int64Gauge("go.memory.heap_alloc", metric.WithUnit("By")); err != nil {
		return g, err
	}
	g.goroutines, err = meter.Int64Gauge("go.goroutines")
	return g, err
}

func (g perfGauges) sample(ctx context.Context, proc *process.Process) {
	usage, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err == nil && len(usage) > 0 {
		g.cpu.Record(ctx, usage[0])
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	}

	if proc != nil {
		mem, err := proc.MemoryInfoWithContext(ctx)
		if err == nil {
			g.rss.Record(ctx, int64(mem.RSS))
		}
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	g.heap.Record(ctx, int64(stats.HeapAlloc))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))
}

// InstrumentPerfStats records process gauges through the global meter
// provider every PerfStatsInterval until ctx is done.
func InstrumentPerfStats(ctx context.Context) {
	gauges, err := newPerfGauges(otel.Meter("gktracker/lib/telemetry"))
	if err != nil {
		slog.Warn("failed to create perf gauges", "err", err)
		return
	}
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Debug("failed to inspect own process", "err", err)
		proc = nil
	}

	go func() {
		ticker := time.NewTicker(PerfStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				gauges.sample(ctx, proc)
			case <-ctx.Done():
				return
			}
		}
	}()
}
