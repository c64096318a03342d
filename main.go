package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"f2_scrooper/config"
	"f2_scrooper/models"
	"f2_scrooper/scheduler"
	"f2_scrooper/server"
)

func main() {
	root := &cobra.Command{
		Use:           "f2_scrooper",
		Short:         "Scrapes FIA Formula 2 standings, calendars and rosters on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}

	root.AddCommand(daemonCmd())
	root.AddCommand(scrapeCmd())
	root.AddCommand(enqueueCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler and the HTTP trigger endpoint",
		RunE:  runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.New(a.orchestrator, a.sqlite, scheduler.Options{
		Interval:     a.cfg.Scheduler.Interval,
		Cron:         a.cfg.Scheduler.Cron,
		ErrorBackoff: a.cfg.Scheduler.ErrorBackoff,
		PollInterval: a.cfg.Scheduler.PollInterval,
	}, a.log)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	srv := server.New(a.cfg.Server, a.cfg.IsProduction(), sched, a.sqlite, a.log)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
		err = <-srvErr
	case err = <-srvErr:
		if err != nil {
			a.log.Error("http server stopped", zap.Error(err))
		}
		stop()
	}

	sched.Stop()
	a.log.Info("stopped")
	return err
}

func scrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "scrape [kind]",
		Short:     "Run one cycle, or a single kind, and print the report",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.DataKind
			if len(args) == 1 {
				k, ok := models.ParseKind(args[0])
				if !ok {
					return fmt.Errorf("unknown kind %q (want one of %v)", args[0], kindNames())
				}
				kind = k
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var report *models.CycleReport
			if kind == "" {
				report, err = a.orchestrator.RunCycle(ctx, scheduler.TriggerManual)
			} else {
				report, err = a.orchestrator.RunKind(ctx, kind, scheduler.TriggerManual)
			}
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				enc.Encode(report)
			}
			if err != nil {
				return err
			}
			if !report.Success() {
				return fmt.Errorf("failed kinds: %v", report.Failed())
			}
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <scrape_now|scrape_kind|pause|resume> [kind]",
		Short: "Queue a command for the running daemon",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			command := models.CommandType(args[0])
			var params *models.CommandParams
			if command == models.CmdScrapeKind {
				if len(args) != 2 {
					return fmt.Errorf("%s needs a kind", command)
				}
				if _, ok := models.ParseKind(args[1]); !ok {
					return fmt.Errorf("unknown kind %q", args[1])
				}
				params = &models.CommandParams{Kind: args[1]}
			}

			store, err := openSQLite(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.EnqueueCommand(command, params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (#%d)\n", command, id)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last run and per-kind health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openSQLite(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			last, err := store.LastRun()
			if err != nil {
				return err
			}
			kinds, err := store.GetKindStats()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				LastRun *models.ScrapeRun  `json:"last_run"`
				Kinds   []models.KindStats `json:"kinds"`
			}{last, kinds})
		},
	}
}

func kindNames() []string {
	names := make([]string, len(models.AllKinds))
	for i, k := range models.AllKinds {
		names[i] = string(k)
	}
	return names
}
