package main

import (
	"context"
	"fmt"
	"os"

	"gktracker/lib/serviceutil"
	"gktracker/lib/telemetry"

	"github.com/spf13/cobra"
)

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

var rootCmd = &cobra.Command{
	Use:   "gkpipeline",
	Short: "gkpipeline scrapes goalkeeper match logs, builds the published tables and uploads them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		configPath, _ := cmd.Flags().GetString("config")
		telemetry.InitSlog(verbose)

		config, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, newApp(config, verbose)))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		appFrom(cmd).close()
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().String("config", "gkpipeline.json5", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	ctx := serviceutil.SignalContext()
	t, err := telemetry.SetupFromEnv(ctx, "gkpipeline")
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
