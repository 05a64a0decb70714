package main

import (
	"context"
	"fmt"

	"gktracker/lib/notify"

	"github.com/mazen160/go-random"
)

type runner interface {
	NotifyFailure(ctx context.Context, failure notify.Failure) error
}

func newRunId() string {
	id, err := random.String(8)
	if err != nil {
		return "unknown"
	}
	return id
}

// runStages executes the stages in order and stops at the first failure,
// which is mailed to the operators when email is configured.
func runStages(ctx context.Context, a *app, stages []stage, notifier runner) error {
	runId := newRunId()
	a.tel.ReportDebug("starting pipeline run", "run_id", runId, "stages", len(stages))

	for _, s := range stages {
		a.tel.ReportDebug("running stage", "run_id", runId, "stage", s.name)
		err := s.run(ctx)
		if err == nil {
			continue
		}

		notifyErr := notifier.NotifyFailure(ctx, notify.Failure{
			RunId: runId,
			Stage: s.name,
			Err:   err,
		})
		if notifyErr != nil {
			a.tel.ReportWarning("run.notify", notifyErr)
		}
		return fmt.Errorf("run %s: stage %s: %w", runId, s.name, err)
	}

	a.tel.ReportDebug("pipeline run finished", "run_id", runId)
	return nil
}
