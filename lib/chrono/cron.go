package chrono

import (
	"fmt"
	"time"

	"gktracker/lib/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI schedules callbacks on standard five field cron specs.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun validates spec and returns the first activation strictly after
// from, evaluated in UTC.
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return schedule.Next(from.UTC()), nil
}

// StandardCron runs callbacks in UTC with robfig/cron. A callback that is
// still running when its next activation comes up is skipped.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts the scheduler, it runs until Stop is called.
func NewStandardCron(tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return StandardCron{cron: c}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	if err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return nil
}

// Next is the earliest upcoming activation of any scheduled callback, zero
// when nothing is scheduled.
func (s StandardCron) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Stop stops scheduling new activations and waits for running ones.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger forwards the scheduler's logr-style calls to telemetry.
type cronLogger struct {
	tel telemetry.API
}

func pairs(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return out
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("scheduler", append([]any{fmt.Errorf("%s: %w", msg, err)}, pairs(keysAndValues)...)...)
}
