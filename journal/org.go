package journal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode entry. Facts go in a
// PROPERTIES drawer; the Review heading is left for the operator.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s #%d (%s)\n", t.Symbol, t.Action, t.Ticket, t.StrategyID)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TICKET: %d\n", t.Ticket)
	fmt.Fprintf(&b, ":STRATEGY: %s\n", t.StrategyID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":ACTION: %s\n", t.Action)
	fmt.Fprintf(&b, ":VOLUME: %g\n", t.Volume)
	fmt.Fprintf(&b, ":OPEN_PRICE: %.5f\n", t.OpenPrice)
	fmt.Fprintf(&b, ":CLOSE_PRICE: %.5f\n", t.ClosePrice)
	if !t.OpenTime.IsZero() {
		fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":DURATION: %s\n", t.Duration)
	fmt.Fprintf(&b, ":NET_PL: %.2f\n", t.NetPL)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)

	keys := make([]string, 0, len(t.Meta))
	for k := range t.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ":META_%s: %v\n", strings.ToUpper(k), t.Meta[k])
	}
	b.WriteString(":END:\n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}
