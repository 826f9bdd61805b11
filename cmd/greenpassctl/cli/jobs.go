package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/greenpass/greenpass/internal/app"
	"github.com/greenpass/greenpass/jobs"
)

// Inspector is the subset of asynq.Inspector used by JobsCLI.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunAllRetryTasks(queue string) (int, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the event queue.
type JobsCLI struct {
	inspector Inspector
}

// NewJobsCLI builds the helpers over inspector.
func NewJobsCLI(inspector Inspector) *JobsCLI {
	return &JobsCLI{inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the metrics for the default queue.
func (c *JobsCLI) InspectQueue(_ context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListRetry returns tasks waiting for another attempt.
func (c *JobsCLI) ListRetry(_ context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// RetryNow moves every retry task back to pending.
func (c *JobsCLI) RetryNow(_ context.Context) (int, error) {
	if c == nil || c.inspector == nil {
		return 0, errors.New("jobs cli: inspector not configured")
	}
	return c.inspector.RunAllRetryTasks(jobs.QueueDefault)
}

func newJobsCommand(load func() (*app.Config, error)) *cobra.Command {
	var jc *JobsCLI
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the engine event queue",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if jc != nil {
				return nil
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			jc = NewJobsCLI(asynq.NewInspector(cfg.Redis().Asynq()))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return jc.Close()
		},
	}
	cmd.AddCommand(newJobsStatsCommand(&jc), newJobsRetryCommand(&jc))
	return cmd
}

func newJobsStatsCommand(jc **JobsCLI) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := (*jc).InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return w.Flush()
		},
	}
}

func newJobsRetryCommand(jc **JobsCLI) *cobra.Command {
	var (
		size int
		run  bool
	)
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "List retrying tasks, or run them now with --run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if run {
				n, err := (*jc).RetryNow(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tasks moved to pending\n", n)
				return nil
			}
			tasks, err := (*jc).ListRetry(cmd.Context(), size)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tRETRIED\tLAST ERROR")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", t.ID, t.Type, t.Retried, t.MaxRetry, t.LastErr)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&size, "size", 20, "page size")
	cmd.Flags().BoolVar(&run, "run", false, "run all retry tasks now")
	return cmd
}
