package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/heady-conductor/internal/storage"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and rebuild the capability registry",
}

var registryDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Rediscover capabilities from the workspace and save the registry",
	Long: `Scan the workspace for capabilities and replace the registry with the result:

  HeadyAcademy/Node_Registry.yaml   nodes
  .windsurf/workflows/*.md          workflows
  HeadyAcademy/Tools/**/*.py        tools

Built-in skills and services are always included.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil || Discoverer == nil {
			return fmt.Errorf("registry not initialized")
		}
		snap := Discoverer.Discover()
		if err := Store.Replace(snap); err != nil {
			return fmt.Errorf("saving discovered registry: %w", err)
		}
		return printJSON(cmd, Store.Summary())
	},
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the full registry snapshot as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("registry not initialized")
		}
		data, err := storage.EncodeSnapshot(Store.Snapshot())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	registryCmd.AddCommand(registryDiscoverCmd)
	registryCmd.AddCommand(registryShowCmd)
	rootCmd.AddCommand(registryCmd)
}
