package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query trade and equity records from the journal database named in the
config file (sqlite or postgres). Use --db to read a SQLite file directly.

Subcommands:
  trade  - Details of one trade by ticket
  trades - Recent trades, optionally for one strategy
  stats  - Trade count and net P/L for a day
  equity - Recent equity snapshots

Examples:
  trademgr journal trade 1000
  trademgr journal trades --strategy EURUSD_TREND_01 --limit 20
  trademgr journal stats --day 2024-05-06`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <ticket>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List recent trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show trade count and net P/L for a day",
	Args:  cobra.NoArgs,
	RunE:  runJournalStats,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity",
	Short: "List recent equity snapshots",
	Args:  cobra.NoArgs,
	RunE:  runJournalEquity,
}

var (
	journalDBPath   string
	journalStrategy string
	journalLimit    int
	equityLimit     int
	journalFormat   string
	journalDay      string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalEquityCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to a SQLite journal (overrides the config file)")
	journalCmd.PersistentFlags().StringVar(&journalFormat, "format", "org", "output format: org or json")
	journalTradesCmd.Flags().StringVarP(&journalStrategy, "strategy", "s", "", "only trades of this strategy")
	journalTradesCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "maximum number of trades")
	journalEquityCmd.Flags().IntVarP(&equityLimit, "limit", "n", 20, "maximum number of snapshots")
	journalStatsCmd.Flags().StringVar(&journalDay, "day", "", "day as YYYY-MM-DD (default today)")
}

// openReader opens the queryable journal. CSV journals cannot be queried.
func openReader(ctx context.Context) (journal.Reader, func(), error) {
	jc := config.JournalConfig{Type: config.JournalSQLite, DBPath: journalDBPath}
	if journalDBPath == "" {
		cfg, err := config.LoadFromFile(configPath())
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		jc = cfg.System.Journal
	}
	j, err := journal.Open(ctx, jc)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	r, ok := j.(journal.Reader)
	if !ok {
		_ = j.Close()
		return nil, nil, fmt.Errorf("journal type %q cannot be queried", jc.Type)
	}
	return r, func() { _ = j.Close() }, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	ticket, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("ticket %q: %w", args[0], err)
	}
	r, done, err := openReader(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	rec, err := r.GetTrade(cmd.Context(), ticket)
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	return writeTrades(cmd.OutOrStdout(), []journal.TradeRecord{rec})
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	r, done, err := openReader(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	recs, err := r.ListTrades(cmd.Context(), journal.TradeFilter{StrategyID: journalStrategy, Limit: journalLimit})
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return writeTrades(cmd.OutOrStdout(), recs)
}

func runJournalStats(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if journalDay != "" {
		t, err := time.ParseInLocation("2006-01-02", journalDay, time.Local)
		if err != nil {
			return fmt.Errorf("day: %w", err)
		}
		day = t
	}
	r, done, err := openReader(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	st, err := r.DayStats(cmd.Context(), day)
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}
	if journalFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  trades: %d  net P/L: %.2f\n", st.Day.Format("2006-01-02"), st.Trades, st.NetPL)
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	r, done, err := openReader(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	snaps, err := r.ListEquity(cmd.Context(), equityLimit)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	if journalFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), snaps)
	}
	out := cmd.OutOrStdout()
	for _, s := range snaps {
		fmt.Fprintf(out, "%s  balance %.2f  equity %.2f  open %d\n",
			s.Time.Local().Format("2006-01-02 15:04:05"), s.Balance, s.Equity, s.OpenPositions)
	}
	return nil
}

func writeTrades(w io.Writer, recs []journal.TradeRecord) error {
	if journalFormat == "json" {
		return writeJSON(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no trades")
		return nil
	}
	fmt.Fprint(w, journal.FormatTradesOrg(recs))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
