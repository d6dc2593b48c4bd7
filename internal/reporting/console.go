package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trashpanda-labs/papertrade/internal/engine"
	"github.com/trashpanda-labs/papertrade/pkg/types"
)

// ConsoleRenderer prints engine status tables to a writer (stdout by
// default).
type ConsoleRenderer struct {
	out io.Writer
}

func NewConsoleRenderer() *ConsoleRenderer {
	return &ConsoleRenderer{out: os.Stdout}
}

// NewConsoleRendererTo writes tables to the given writer instead of stdout.
func NewConsoleRendererTo(out io.Writer) *ConsoleRenderer {
	return &ConsoleRenderer{out: out}
}

// PrintStartup renders the engine configuration banner.
func (r *ConsoleRenderer) PrintStartup(symbols []string, evalInterval time.Duration, timeframe string, equity float64) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("PAPER TRADING ENGINE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Symbols", fmt.Sprintf("%v", symbols)},
		{"⏰ Eval Interval", evalInterval.String()},
		{"📈 Tick Timeframe", timeframe},
		{"💰 Starting Equity", fmt.Sprintf("$%.2f", equity)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintStatus renders the current portfolio snapshot with one row per open
// position.
func (r *ConsoleRenderer) PrintStatus(status engine.PortfolioStatus) {
	summary := table.NewWriter()
	summary.SetOutputMirror(r.out)
	summary.SetTitle("PORTFOLIO STATUS")
	summary.SetStyle(table.StyleRounded)

	breakerState := "✅ armed"
	if status.Breaker.Tripped {
		breakerState = fmt.Sprintf("🚨 tripped (%s)", status.Breaker.Reason)
	}
	cooldown := "none"
	if !status.Risk.CooldownUntil.IsZero() && status.Risk.CooldownUntil.After(time.Now().UTC()) {
		cooldown = fmt.Sprintf("until %s", status.Risk.CooldownUntil.Format("15:04:05 MST"))
	}

	summary.AppendRows([]table.Row{
		{"💰 Equity", fmt.Sprintf("$%.2f", status.Risk.Equity)},
		{"📈 Peak Equity", fmt.Sprintf("$%.2f", status.Risk.PeakEquity)},
		{"📊 Daily PnL", fmt.Sprintf("$%.2f", status.Risk.DailyRealizedPnL)},
		{"❌ Loss Streak", fmt.Sprintf("%d", status.Risk.ConsecutiveLosses)},
		{"⏸️ Cool-down", cooldown},
		{"🔌 Circuit Breaker", breakerState},
		{"📋 Open Positions", fmt.Sprintf("%d", len(status.Open))},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})
	summary.Render()
	fmt.Fprintln(r.out)

	if len(status.Open) == 0 {
		return
	}

	positions := table.NewWriter()
	positions.SetOutputMirror(r.out)
	positions.SetTitle("OPEN POSITIONS")
	positions.SetStyle(table.StyleRounded)
	positions.AppendHeader(table.Row{"Symbol", "Side", "Entry", "Remaining", "Stop", "Target", "Trailing", "Age"})

	now := time.Now().UTC()
	for _, p := range status.Open {
		trailing := "-"
		if p.Exit.TrailingArmed {
			trailing = fmt.Sprintf("%.4f", p.Exit.TrailingStop)
		}
		positions.AppendRow(table.Row{
			p.Symbol,
			sideLabel(p.Direction),
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.6f", p.RemainingQty),
			fmt.Sprintf("%.4f", p.StopLoss),
			fmt.Sprintf("%.4f", p.TakeProfit),
			trailing,
			now.Sub(p.OpenedAt).Round(time.Minute).String(),
		})
	}
	positions.Render()
	fmt.Fprintln(r.out)
}

func sideLabel(d types.Direction) string {
	switch d {
	case types.Long:
		return "🟢 LONG"
	case types.Short:
		return "🔴 SHORT"
	default:
		return d.String()
	}
}
