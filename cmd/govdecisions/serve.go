package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stake-plus/govdecisions/src/actions"
	"github.com/stake-plus/govdecisions/src/data"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, Discord bot and REST API",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, db, err := open()
			if err != nil {
				return err
			}
			defer data.Close(db)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			rt, err := actions.StartAll(ctx, cfg, db)
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigs
			log.Printf("%s: %s received, shutting down", programName, sig)

			stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
			defer stop()
			rt.Manager.Stop(stopCtx)
			rt.Close()
			return nil
		},
	}
}

func sweepCommand() *cobra.Command {
	var reconcile bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry pass and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := open()
			if err != nil {
				return err
			}
			defer data.Close(db)

			rt, err := actions.Build(cfg, db)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			engine := rt.Service.Engine()
			report, err := engine.SweepExpirations(ctx, time.Now())
			if err != nil {
				return err
			}
			out := []interface{}{report}

			if reconcile {
				reports, err := rt.Service.MemberLeftEverywhere(ctx)
				if err != nil {
					return err
				}
				for _, r := range reports {
					out = append(out, r)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "also re-check live membership for every channel with pending decisions")
	return cmd
}
