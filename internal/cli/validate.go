package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adhocsim/macsim/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.toml>",
	Short: "Parse and validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	cfg, err := scenario.LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	fmt.Printf("scenario %q is valid\n", cfg.Name)
	fmt.Printf("  nodes:    %d\n", len(cfg.Nodes))
	fmt.Printf("  schedule: %d entries\n", len(cfg.Schedule))
	fmt.Printf("  protocol: %v\n", cfg.Protocol)
	fmt.Printf("  tick cap: %d\n", cfg.TickCap)
	return nil
}
