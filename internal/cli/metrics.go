package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	headymcp "github.com/valter-silva-au/heady-conductor/internal/mcp"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display orchestration and worker task metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include orchestrations, workflow, node and tool executions, health
checks by resulting status, and worker task outcomes by type and worker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Orchestrations:", metrics.Orchestrations)
		fmt.Fprintf(out, "  %-24s %d\n", "Workflows executed:", metrics.WorkflowsExecuted)
		fmt.Fprintf(out, "  %-24s %d\n", "Nodes invoked:", metrics.NodesInvoked)
		fmt.Fprintf(out, "  %-24s %d\n", "Tools executed:", metrics.ToolsExecuted)
		fmt.Fprintf(out, "  %-24s %d\n", "Health checks:", metrics.HealthChecks)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks completed:", metrics.TasksCompleted)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks failed:", metrics.TasksFailed)
		fmt.Fprintf(out, "  %-24s %.1f%%\n", "Task error rate:", metrics.TaskErrorRate*100)
		if metrics.AvgTaskMS > 0 {
			fmt.Fprintf(out, "  %-24s %.1fms\n", "Avg task time:", metrics.AvgTaskMS)
		}

		printCounts(out, "Services by status", metrics.ServicesByStatus)
		printCounts(out, "Tasks by type", metrics.TasksByType)
		printCounts(out, "Tasks by worker", metrics.TasksByWorker)

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "\n  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "    %-20s %d\n", k+":", counts[k])
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past. Empty means 7d.
func parseSinceDuration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "7d"
	}
	return headymcp.ParseSince(s, time.Now())
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
