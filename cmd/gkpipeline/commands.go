package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gktracker/internal/ledger"
	"gktracker/internal/manifest"
	"gktracker/lib/chrono"
	"gktracker/lib/notify"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func stageCommand(use, short, stageName string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			for _, s := range a.stages() {
				if s.name == stageName {
					return s.run(cmd.Context())
				}
			}
			return fmt.Errorf("unknown stage %s", stageName)
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs every stage of the pipeline in order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		return runStages(cmd.Context(), a, a.stages(), notify.NewNotifier(a.config.Email))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the status ledger of the last runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := appFrom(cmd).ledger()
		entries := l.Read()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Stage", "Info", "Started", "Finished", "Duration (s)", "Tables"})
		for _, stage := range l.Keys(entries) {
			e := entries[stage]
			t.AppendRow(table.Row{stage, e.Info, e.StartedUtc, e.FinishedUtc, e.DurationS, formatTables(e.Tables)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

// formatTables renders table row counts as "name=rows" pairs sorted by name.
func formatTables(tables map[string]int64) string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%s=%d", name, tables[name])
	}
	return strings.Join(pairs, "\n")
}

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Prints the manifest with the staleness of every player.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		entities, err := manifest.LoadOptional(a.config.ManifestPath)
		if err != nil {
			return err
		}
		policy := manifest.Policy{MaxAge: a.config.MaxAge()}
		now := a.time.Now()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "Slug", "Last fetched", "Stale"})
		for _, e := range entities {
			lastFetched := "never"
			if e.LastFetchedAt != nil {
				lastFetched = chrono.FormatUTC(*e.LastFetchedAt)
			}
			t.AppendRow(table.Row{e.Identifier, e.Slug, lastFetched, policy.IsStale(e, now)})
		}
		t.AppendFooter(table.Row{"", "", "Total", len(entities)})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Runs the whole pipeline on a cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		schedule, _ := cmd.Flags().GetString("schedule")
		if schedule == "" {
			schedule = a.config.Schedule
		}

		_, err := chrono.NextRun(schedule, a.time.Now())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		notifier := notify.NewNotifier(a.config.Email)
		cron := chrono.NewStandardCron(a.tel)
		err = cron.Cron(schedule, func() {
			err := runStages(ctx, a, a.stages(), notifier)
			if err != nil {
				a.tel.ReportBroken("daemon.run", err)
			}
			// the warehouse is reopened by the next run
			a.close()
		})
		if err != nil {
			cron.Stop()
			return err
		}

		a.tel.ReportDebug("daemon started", "schedule", schedule, "next_run", chrono.FormatUTC(cron.Next()))
		<-ctx.Done()
		cron.Stop()
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("schedule", "", "cron spec (UTC), defaults to the configured schedule")

	rootCmd.AddCommand(
		stageCommand("discover", "Discovers goalkeepers and updates the manifest.", ledger.StageDiscoverPlayers),
		stageCommand("scrape", "Fetches match logs for every stale goalkeeper.", ledger.StageScrapeMatchLogs),
		stageCommand("load", "Loads the scraped files into the warehouse.", ledger.StageLoadWarehouse),
		stageCommand("transform", "Builds and tests the SQL models.", ledger.StageBuildModels),
		stageCommand("export", "Stages the public tables as parquet.", ledger.StageStagePublicTables),
		stageCommand("upload", "Uploads the public tables to the object store.", ledger.StageUploadPublic),
		runCmd,
		statusCmd,
		playersCmd,
		daemonCmd,
	)
}
