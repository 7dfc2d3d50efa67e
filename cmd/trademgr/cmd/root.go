package cmd

import (
	"strings"

	"github.com/rustyeddy/trademanager/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "trademgr",
	Short: "Trade manager between strategy processes and one brokerage account",
	Long: `trademgr accepts trade signals from independent strategy processes,
executes them against a single brokerage account, journals every closed
trade and guards the whole book with a basket take-profit / stop-loss.

Settings come from flags or TRADEMGR_* environment variables, e.g.
TRADEMGR_CONFIG=/etc/trademgr/config.yaml.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")

	for _, name := range []string{"config", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.SetEnvPrefix("TRADEMGR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func configPath() string { return viper.GetString("config") }

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetString("log-level"), viper.GetString("log-format"))
}
