package cli

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// ErrActionFailed is returned when a sub-action ran but reported
// success:false. The result has already been printed.
var ErrActionFailed = errors.New("action reported failure")

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	requestFlag  string
	queryFlag    string
	categoryFlag string
	summaryFlag  bool
	healthFlag   bool
	workflowFlag string
	nodeFlag     string
	inputFlag    string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "heady",
	Short: "Heady Conductor - capability registry, request router and task workers",
	Long: `Heady Conductor routes free-text requests to the workflows, nodes, tools
and services in a capability registry, executes the resulting plan, and runs
the polling task workers that serve the coordinator.

Without a subcommand exactly one of --request, --query, --summary, --health,
--workflow or --node selects the action. Results are printed as JSON and the
exit code is non-zero when the action reports success:false.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "heady %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&requestFlag, "request", "r", "", "Plan and execute a free-text request")
	f.StringVarP(&queryFlag, "query", "q", "", "Search the capability registry")
	f.StringVar(&categoryFlag, "category", "", "Restrict --query to nodes, workflows, skills, services or tools")
	f.BoolVarP(&summaryFlag, "summary", "s", false, "Print a registry summary")
	f.BoolVar(&healthFlag, "health", false, "Check service health (all services, or the one named as argument)")
	f.StringVarP(&workflowFlag, "workflow", "w", "", "Execute the named workflow")
	f.StringVarP(&nodeFlag, "node", "n", "", "Invoke the named node")
	f.StringVar(&inputFlag, "input", "", "JSON object passed as parameters to --workflow or input to --node")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

// WantsVerbose reports whether --verbose appears in args. The logger is built
// before flags are parsed, so main checks this up front.
func WantsVerbose(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "--verbose" || a == "--verbose=true" {
			return true
		}
	}
	return false
}

func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && !healthFlag {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	if Store == nil || Dispatcher == nil {
		return fmt.Errorf("registry not initialized")
	}
	ctx := cmd.Context()

	switch {
	case requestFlag != "":
		res := Dispatcher.Orchestrate(ctx, requestFlag)
		return printResult(cmd, res, res.Success)

	case queryFlag != "":
		variant := models.Variant(categoryFlag)
		if variant != "" && !variant.Valid() {
			return fmt.Errorf("invalid --category %q: must be one of nodes, workflows, skills, services, tools", categoryFlag)
		}
		res := Store.Query(queryFlag, variant)
		return printResult(cmd, models.CapabilityQuery{
			Query:        queryFlag,
			Category:     variant,
			TotalResults: res.Total(),
			Results:      res,
		}, true)

	case summaryFlag:
		return printResult(cmd, Store.Summary(), true)

	case healthFlag:
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		res := Dispatcher.CheckServiceHealth(ctx, name)
		return printResult(cmd, res, res.Success)

	case workflowFlag != "":
		input, err := parseInput(inputFlag)
		if err != nil {
			return err
		}
		res := Dispatcher.ExecuteWorkflow(ctx, workflowFlag, input)
		return printResult(cmd, res, res.Success)

	case nodeFlag != "":
		input, err := parseInput(inputFlag)
		if err != nil {
			return err
		}
		res := Dispatcher.InvokeNode(ctx, nodeFlag, input)
		return printResult(cmd, res, res.Success)
	}

	return cmd.Help()
}

func parseInput(s string) (map[string]any, error) {
	input := map[string]any{}
	if strings.TrimSpace(s) == "" {
		return input, nil
	}
	if err := json.Unmarshal([]byte(s), &input); err != nil {
		return nil, fmt.Errorf("parsing --input: %w", err)
	}
	return input, nil
}

// printResult writes v as two-space indented JSON and maps success:false to
// ErrActionFailed.
func printResult(cmd *cobra.Command, v any, success bool) error {
	if err := printJSON(cmd, v); err != nil {
		return err
	}
	if !success {
		return ErrActionFailed
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting result as JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
