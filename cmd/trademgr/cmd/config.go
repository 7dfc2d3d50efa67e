package cmd

import (
	"fmt"
	"sort"

	"github.com/rustyeddy/trademanager/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage the trade manager configuration file.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  trademgr config init -o config.yaml
  trademgr config validate -f config.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "config.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (defaults to --config)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  trademgr run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configValidatePath
	if path == "" {
		path = configPath()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
	fmt.Fprintf(out, "  Intake: %s\n", cfg.System.IntakeAddr())
	fmt.Fprintf(out, "  Broker: %s\n", brokerType(cfg))
	fmt.Fprintf(out, "  Journal: %s\n", journalType(cfg))
	if cfg.System.AuthorizedAccount != 0 {
		fmt.Fprintf(out, "  Authorized account: %d\n", cfg.System.AuthorizedAccount)
	}
	if rm := cfg.Risk(); rm.BasketEnabled {
		fmt.Fprintf(out, "  Basket: TP %s / SL %s (unlock: %s)\n", usd(rm.BasketTakeProfitUSD), usd(rm.BasketStopLossUSD), unlockPolicy(rm))
	} else {
		fmt.Fprintln(out, "  Basket: disabled")
	}

	ids := make([]string, 0, len(cfg.Strategies))
	for id := range cfg.Strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := cfg.Strategies[id]
		state := "enabled"
		if !s.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  Strategy %s: magic %d, volume %g, %s\n", id, s.MagicNumber, s.Volume, state)
	}
	return nil
}

func brokerType(cfg *config.Config) string {
	if cfg.System.Broker.Type == "" {
		return config.BrokerPaper
	}
	return cfg.System.Broker.Type
}

func journalType(cfg *config.Config) string {
	if cfg.System.Journal.Type == "" {
		return config.JournalSQLite
	}
	return cfg.System.Journal.Type
}

func unlockPolicy(rm config.RiskManagement) string {
	if rm.UnlockPolicy == "" {
		return config.UnlockRestart
	}
	return rm.UnlockPolicy
}

func usd(v *float64) string {
	if v == nil {
		return "off"
	}
	return fmt.Sprintf("$%.2f", *v)
}
