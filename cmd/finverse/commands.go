package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finverse/finverse/cmd/finverse/cli"
	"github.com/finverse/finverse/internal/app"
	"github.com/finverse/finverse/internal/statement"
)

func statementCmd() *cobra.Command {
	var kind, entity, period, format string
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Write a financial statement to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			req := statement.Request{EntityKind: statement.EntityKind(kind), EntityID: entity, PeriodToken: period}
			return cli.WriteStatement(cmd.Context(), rt.statements, cmd.OutOrStdout(), req, format)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind: advisor, finfluencer, organizer or vendor")
	cmd.Flags().StringVar(&entity, "entity", "", "entity id")
	cmd.Flags().StringVar(&period, "period", statement.TokenCurrentMonth, "period token")
	cmd.Flags().StringVar(&format, "format", cli.FormatCSV, "output format: csv, html or xlsx")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage Redis caches"}
	var namespace string
	bump := &cobra.Command{
		Use:   "bump",
		Short: "Invalidate cached titles and feature overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.redis == nil {
				return fmt.Errorf("redis unavailable at %s", rt.cfg.RedisAddr)
			}
			names, err := cli.BumpCaches(cmd.Context(), map[string]cli.Bumper{
				nsStatement: rt.titles,
				nsFeatures:  rt.overrides,
			}, namespace)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "bumped %s\n", name)
			}
			return nil
		},
	}
	bump.Flags().StringVar(&namespace, "namespace", "", "only bump this namespace (statement or features)")
	cmd.AddCommand(bump)
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	open := func() (*cli.JobsCLI, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return nil, err
		}
		return cli.NewJobsCLI(cfg.RedisAddr)
	}

	var period string
	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Enqueue a statement snapshot run",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.TriggerSnapshot(cmd.Context(), period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	snapshot.Flags().StringVar(&period, "period", statement.TokenLastMonth, "period token to snapshot")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			s, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			return nil
		},
	}

	cmd.AddCommand(snapshot, stats)
	return cmd
}

