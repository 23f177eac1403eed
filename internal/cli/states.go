package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/registry"
)

var statesDiscover bool

// statesCmd represents the states command
var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "List the states an extraction would walk",
	Long: `List the state catalog in walk order.

By default the built-in catalog is printed. With --discover the catalog is
fetched from the registry; with --states-file the file is read instead.`,
	Args: cobra.NoArgs,
	RunE: runStates,
}

func init() {
	rootCmd.AddCommand(statesCmd)

	statesCmd.Flags().BoolVar(&statesDiscover, "discover", false, "fetch the catalog from the registry")
	statesCmd.Flags().StringVar(&statesFile, "states-file", "", "read state codes from a file, one per line")
}

func runStates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("states-file") {
		cfg.Registry.StatesFile = statesFile
	}

	states, err := listStates(cmd.Context(), cfg, statesDiscover)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s\n", s.Code, s.Name)
	}
	return tw.Flush()
}

func listStates(ctx context.Context, cfg *model.Config, discover bool) ([]model.State, error) {
	var enumerator registry.StateEnumerator
	switch {
	case cfg.Registry.StatesFile != "":
		enumerator = &registry.FileEnumerator{Path: cfg.Registry.StatesFile}
	case discover:
		client, err := registry.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.Preflight(ctx); err != nil {
			return nil, err
		}
		enumerator = &registry.DiscoveryEnumerator{Lister: client}
	default:
		enumerator = registry.NewCatalogEnumerator()
	}
	return enumerator.States(ctx)
}
