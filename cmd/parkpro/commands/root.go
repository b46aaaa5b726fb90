package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"parkpro-backend/cmd/parkpro/globals"
	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/service"
	"parkpro-backend/lib/restyutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const envEmail = "PARKPRO_EMAIL"

var (
	verbose  bool
	dumpHttp bool
	email    string
)

var rootCmd = &cobra.Command{
	Use:          "parkpro",
	Short:        "parkpro reserves parking lots on the villapro portal, directly or by waiting for one to free up.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		config, err := service.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		opts := service.Options{}
		if dumpHttp {
			output, err := restyutil.NewFilesystemOutput("<dev_state>/portal_http")
			if err != nil {
				return err
			}
			opts.Dump = output
		}

		svc, err := service.Open(cmd.Context(), config, opts)
		if err != nil {
			return err
		}
		cmd.SetContext(globals.Set(cmd.Context(), &globals.Value{
			Service: svc,
			Email:   email,
		}))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return globals.Get(cmd.Context()).Service.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
	rootCmd.PersistentFlags().BoolVar(&dumpHttp, "dump-http", false, "Write every portal http exchange to <dev_state>/portal_http.")
	rootCmd.PersistentFlags().StringVarP(&email, "email", "e", os.Getenv(envEmail), "The portal account to act for (defaults to $"+envEmail+").")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// account returns the service and the email a command acts for.
func account(cmd *cobra.Command) (*service.Service, string, error) {
	value := globals.Get(cmd.Context())
	if value.Email == "" {
		return nil, "", errors.New("no account given, use --email or $" + envEmail)
	}
	return value.Service, value.Email, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// parseMonth parses YYYY-MM, no arguments means the current month.
func parseMonth(svc *service.Service, args []string) (int, int, error) {
	if len(args) == 0 {
		now := svc.Clock().Now()
		return now.Year(), int(now.Month()), nil
	}
	parsed, err := time.Parse("2006-01", args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("month must look like 2026-01: %w", err)
	}
	return parsed.Year(), int(parsed.Month()), nil
}

func joinInts(values []int, format func(int) string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = format(v)
	}
	return strings.Join(parts, ", ")
}
