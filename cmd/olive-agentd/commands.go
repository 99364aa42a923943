package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oliveapp/olive-agents/internal/dispatch"
	"github.com/oliveapp/olive-agents/internal/runclient"
)

func (e *env) runClient() *runclient.Client {
	return &runclient.Client{
		BaseURL:  e.cfg.Poll.BaseURL,
		HTTP:     &http.Client{Timeout: e.cfg.Dispatch.Timeout},
		Attempts: e.cfg.Poll.Attempts,
		Interval: e.cfg.Poll.Interval,
	}
}

func newRunCmd(e *env) *cobra.Command {
	var req dispatch.Request
	var local bool
	cmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run one agent now for a user",
		Long:  "Run dispatches the agent on the server and polls for the result. When the run is still going after the last poll the most recent runs are shown instead. With --local the agent runs in this process.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AgentID = args[0]
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if local {
				a, err := openApp(ctx, e.cfg, e.logger)
				if err != nil {
					return err
				}
				defer a.Close()
				res, err := a.dispatcher.Run(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(out, res)
			}

			client := e.runClient()
			run, err := client.RunNow(ctx, req)
			if errors.Is(err, runclient.ErrPollExhausted) {
				fmt.Fprintf(cmd.ErrOrStderr(), "run %s still in progress, showing recent runs\n", run.ID)
				runs, rerr := client.RecentRuns(ctx, req.UserID, req.AgentID, 5)
				if rerr != nil {
					return rerr
				}
				return printJSON(out, runs)
			}
			if err != nil {
				return err
			}
			return printJSON(out, run)
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "User id to run the agent for")
	cmd.Flags().StringVar(&req.CoupleID, "couple", "", "Couple id, when the run is on behalf of a couple")
	cmd.Flags().BoolVar(&local, "local", false, "Dispatch in this process instead of through the server")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRunsCmd(e *env) *cobra.Command {
	var userID, agentID string
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent runs for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := e.runClient().RecentRuns(cmd.Context(), userID, agentID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&agentID, "agent", "", "Only runs of this agent")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newApproveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Approve a run awaiting approval and deliver its notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := e.runClient().ApproveRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newCancelCmd(e *env) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a running or held run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.runClient().CancelRun(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s cancelled\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the run")
	return cmd
}

func newTickCmd(e *env) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "tick <schedule>",
		Short: "Dispatch every enabled agent carrying a schedule label",
		Long:  "Tick is meant to be called by cron, e.g. \"olive-agentd tick daily_9am\" every day at 09:00.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				report dispatch.ScheduleReport
				err    error
			)
			if local {
				a, openErr := openApp(ctx, e.cfg, e.logger)
				if openErr != nil {
					return openErr
				}
				defer a.Close()
				report, err = a.dispatcher.RunScheduled(ctx, args[0])
			} else {
				report, err = e.runClient().RunScheduled(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Dispatch in this process instead of through the server")
	return cmd
}

func newAgentsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the background agents in the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			items, err := a.dispatcher.Agents(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SKILL ID\tSCHEDULE\tREQUIRES\tNAME")
			for _, agent := range items {
				requires := agent.RequiresConnection
				if requires == "" {
					requires = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", agent.SkillID, agent.Schedule, requires, agent.Name)
			}
			return tw.Flush()
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the agent catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// openApp migrates on open and seeds the catalog.
			a, err := openApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			e.logger.Info().Str("driver", e.cfg.Storage.Driver).Str("dialect", string(a.db.Dialect)).Msg("schema up to date")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The version command needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "olive-agentd %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
