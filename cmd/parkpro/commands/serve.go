package commands

import (
	"context"
	"log/slog"
	"time"

	"parkpro-backend/cmd/parkpro/globals"
	"parkpro-backend/internal/components/chrono"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/service"

	"github.com/spf13/cobra"
)

var runRulesOnStart bool

func init() {
	serveCmd.Flags().BoolVar(&runRulesOnStart, "run-rules", false, "Run every rule once right after startup.")
	rootCmd.AddCommand(serveCmd)
}

func adoptSnipers(ctx context.Context, svc *service.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			adopted, err := svc.ResumeOnStartup(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("adopting snipers failed", "err", err)
				continue
			}
			if adopted > 0 {
				slog.Info("adopted snipers", "count", adopted)
			}
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs snipers and the daily rule schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := globals.Get(ctx).Service
		config := svc.Config()
		tel := telemetry.SlogAPI{}

		if config.Telemetry.Enabled() {
			t, err := telemetry.Setup(ctx, "parkpro", config.Telemetry)
			if err != nil {
				return err
			}
			defer t.Shutdown(context.Background())
		}
		telemetry.InstrumentPerfStats(ctx, tel, svc.RunningSnipers)

		resumed, err := svc.ResumeOnStartup(ctx)
		if err != nil {
			return err
		}
		slog.Info("resumed snipers", "count", resumed)

		cron := chrono.NewStandardCron(svc.Clock(), tel)
		defer cron.Stop()

		runAll := func() {
			failed, err := svc.RunAllRules(ctx)
			if err != nil {
				slog.Error("running rules", "err", err)
				return
			}
			slog.Info("ran rules", "failed_accounts", failed)
		}
		err = cron.Cron(config.Rules.CronSpec(), runAll)
		if err != nil {
			return err
		}
		if runRulesOnStart {
			runAll()
		}
		go adoptSnipers(ctx, svc, config.Sniper.ResumeInterval())

		slog.Info("serving", "rules_cron", config.Rules.CronSpec(), "timezone", svc.Clock().Location().String())
		<-ctx.Done()
		return nil
	},
}
