package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gktracker/internal/dashboard"
	"gktracker/internal/objsync"
	"gktracker/lib/chrono"
	"gktracker/lib/objstore"
	"gktracker/lib/serviceutil"
	"gktracker/lib/telemetry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "gkdash",
	Short:        "gkdash syncs the published goalkeeper tables and serves them over http.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		configPath, _ := cmd.Flags().GetString("config")
		telemetry.InitSlog(verbose)

		config, err := readConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("force-sync") {
			config.ForceSync = "1"
		}
		if cmd.Flags().Changed("port") {
			config.Port, _ = cmd.Flags().GetInt("port")
		}
		err = config.Validate()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return serve(cmd.Context(), config)
	},
}

func serve(ctx context.Context, config Config) error {
	tel := telemetry.SlogAPI{}
	clock := chrono.NewStandardTime()

	store, err := objstore.NewClient(tel, config.ObjectStore)
	if err != nil {
		return err
	}
	_, err = dashboard.SyncOnStartup(ctx, tel, objsync.NewSyncer(tel, store, clock), clock, dashboard.SyncOptions{
		DataDir:     config.DataDir,
		Bucket:      config.Bucket,
		Prefix:      config.Prefix,
		MinInterval: config.MinSyncInterval(),
		Force:       config.Force(),
	})
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}

	cache := dashboard.NewCache(tel, config.DataDir)
	defer cache.Close()
	err = cache.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	if config.RefreshSchedule != "" {
		cron := chrono.NewStandardCron(tel)
		defer cron.Stop()
		err = cron.Cron(config.RefreshSchedule, refreshJob(ctx, cache))
		if err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", config.RefreshSchedule, err)
		}
	}

	telemetry.InstrumentPerfStats(ctx)
	server := dashboard.NewServer(tel, cache, dashboard.Options{})
	return serviceutil.StartHttpServer(ctx, config.Port, server.Handler())
}

// refreshJob reloads the cache, a failed reload keeps serving the previous
// snapshot.
func refreshJob(ctx context.Context, cache *dashboard.Cache) func() {
	return func() {
		err := cache.Refresh(ctx)
		if err != nil {
			slog.Warn("scheduled refresh failed, serving the previous snapshot", "err", err)
		}
	}
}

func main() {
	rootCmd.Flags().String("config", "gkdash.json5", "path to the config file")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.Flags().Bool("force-sync", false, "sync from the object store even if synced recently")
	rootCmd.Flags().Int("port", defaultConfig.Port, "port to listen on")

	ctx := serviceutil.SignalContext()
	t, err := telemetry.SetupFromEnv(ctx, "gkdash")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}

	err = rootCmd.ExecuteContext(ctx)
	shutdownErr := t.Shutdown(context.Background())
	if shutdownErr != nil {
		fmt.Fprintln(os.Stderr, shutdownErr)
	}
	if err != nil {
		os.Exit(1)
	}
}
