package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier on a terminal.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

// NewConsole writes to stdout. With table set, every cycle also prints its
// trades and exits.
func NewConsole(table bool) *Console {
	return NewConsoleWriter(os.Stdout, table)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// NotifyCycle prints the one-line cycle summary.
func (c *Console) NotifyCycle(_ context.Context, s domain.CycleSummary) error {
	r := s.Record
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] cycle %d | %d mkts, %d eval | +%d trades, -%d exits | api $%.4f | equity $%.2f (cash $%.2f) | dd %.1f%%",
		c.now().Format("15:04:05"), r.CycleNumber,
		r.MarketsScanned, r.MarketsEvaluated,
		r.TradesPlaced, r.PositionsExited,
		r.APICostUSD,
		s.Bankroll.Equity(), s.Bankroll.AvailableCash,
		s.Drawdown*100)
	if r.DrawdownActive {
		sb.WriteString(" | DRAWDOWN")
	}
	if line := skipLine(s.Skipped); line != "" {
		fmt.Fprintf(&sb, "\n  skipped: %s", line)
	}
	fmt.Fprintln(c.out, sb.String())

	if c.table {
		c.printTrades(s.Decisions)
		c.printExits(s.Exits)
	}
	return nil
}

// skipLine renders reasons by descending count.
func skipLine(skipped map[domain.SkipReason]int) string {
	if len(skipped) == 0 {
		return ""
	}
	reasons := make([]domain.SkipReason, 0, len(skipped))
	for r := range skipped {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if skipped[reasons[i]] != skipped[reasons[j]] {
			return skipped[reasons[i]] > skipped[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", r, skipped[r])
	}
	return strings.Join(parts, " ")
}

func (c *Console) printTrades(decisions []domain.Decision) {
	var traded []domain.Decision
	for _, d := range decisions {
		if d.Status == domain.DecisionTraded {
			traded = append(traded, d)
		}
	}
	if len(traded) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Side", "Model", "Price", "Edge", "Size")
	for _, d := range traded {
		table.Append(
			domain.TruncateQuestion(d.Question, d.MarketID, 40),
			string(d.Side),
			fmt.Sprintf("%.3f", d.ModelProbability),
			fmt.Sprintf("%.3f", d.MarketPrice),
			fmt.Sprintf("%+.3f", d.Edge),
			fmt.Sprintf("$%.2f", d.SizeUSD),
		)
	}
	table.Render()
}

func (c *Console) printExits(exits []domain.ExitDecision) {
	if len(exits) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Exit", "Side", "Reason", "Entry", "Exit price", "PnL")
	for _, e := range exits {
		p := e.Position
		table.Append(
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			string(p.Side),
			string(e.Reason),
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("%.3f", e.Price),
			fmt.Sprintf("$%+.2f", e.Price*p.Shares-p.CostUSD),
		)
	}
	table.Render()
}

// NotifyDeath prints the death report.
func (c *Console) NotifyDeath(_ context.Context, r domain.DeathReport) error {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  AGENT DIED at cycle %d (%s)\n", r.Cycle, r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "  %s\n", r.Cause)
	fmt.Fprintf(c.out, "========================================================\n\n")

	fmt.Fprintf(c.out, "  Seed:        $%.2f\n", r.InitialSeed)
	fmt.Fprintf(c.out, "  Realized:    $%+.2f\n", r.RealizedPnL)
	fmt.Fprintf(c.out, "  Unrealized:  $%+.2f\n", r.UnrealizedPnL)
	fmt.Fprintf(c.out, "  API costs:   $%.2f\n", r.TotalAPICost)
	fmt.Fprintf(c.out, "  Total PnL:   $%+.2f\n", r.TotalPnL)
	fmt.Fprintf(c.out, "  Trades:      %d\n\n", r.TradeCount)

	c.printPositions("Open positions at death", r.OpenPositions)
	c.printCycles(r.RecentCycles)
	return nil
}

// PrintStatus renders the report command.
func (c *Console) PrintStatus(r domain.StatusReport, mode string) {
	b := r.Bankroll
	state := "ALIVE"
	if !r.Alive {
		state = "DEAD"
	}
	fmt.Fprintf(c.out, "\n[%s] %s | mode %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), state, mode)
	fmt.Fprintf(c.out, "  Equity $%.2f = cash $%.2f + liquidation $%.2f (%d open, cost $%.2f)\n",
		b.Equity(), b.AvailableCash, b.LiquidationValue, b.OpenPositions, b.OpenExposure)
	fmt.Fprintf(c.out, "  Peak $%.2f | drawdown %.1f%%\n", b.Peak, b.Drawdown()*100)
	fmt.Fprintf(c.out, "  Seed $%.2f | realized $%+.2f | unrealized $%+.2f | api $%.2f | total $%+.2f | %d trades\n\n",
		r.InitialSeed, r.RealizedPnL, r.UnrealizedPnL, r.TotalAPICost, r.TotalPnL, r.TradeCount)

	c.printPositions("Open positions", r.OpenPositions)
	c.printCycles(r.RecentCycles)
}

// PrintCalibrations renders the per-city corrections.
func (c *Console) PrintCalibrations(params []domain.CalibrationParams) {
	if len(params) == 0 {
		fmt.Fprintln(c.out, "  no calibrated cities yet")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("City", "Bias °F", "Spread", "Obs")
	for _, p := range params {
		table.Append(
			p.City,
			fmt.Sprintf("%+.2f", p.BiasOffset),
			fmt.Sprintf("%.3f", p.SpreadFactor),
			fmt.Sprintf("%d", p.Observations),
		)
	}
	table.Render()
}

func (c *Console) printPositions(title string, positions []domain.Position) {
	if len(positions) == 0 {
		return
	}
	fmt.Fprintf(c.out, "  %s:\n", title)
	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Side", "Entry", "Mark", "Shares", "Cost", "uPnL", "Group")
	for _, p := range positions {
		table.Append(
			domain.TruncateQuestion(p.Question, p.MarketID, 40),
			string(p.Side),
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("%.3f", p.Mark()),
			fmt.Sprintf("%.2f", p.Shares),
			fmt.Sprintf("$%.2f", p.CostUSD),
			fmt.Sprintf("$%+.2f", p.UnrealizedPnL()),
			p.CorrelationGroup,
		)
	}
	table.Render()
}

func (c *Console) printCycles(cycles []domain.CycleRecord) {
	if len(cycles) == 0 {
		return
	}
	fmt.Fprintln(c.out, "  Recent cycles:")
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Started", "Mkts", "Eval", "Trades", "Exits", "API $", "Equity", "DD")
	for _, r := range cycles {
		dd := ""
		if r.DrawdownActive {
			dd = "!"
		}
		table.Append(
			fmt.Sprintf("%d", r.CycleNumber),
			r.StartedAt.Format("01-02 15:04"),
			fmt.Sprintf("%d", r.MarketsScanned),
			fmt.Sprintf("%d", r.MarketsEvaluated),
			fmt.Sprintf("%d", r.TradesPlaced),
			fmt.Sprintf("%d", r.PositionsExited),
			fmt.Sprintf("%.4f", r.APICostUSD),
			fmt.Sprintf("$%.2f", r.BankrollAfter),
			dd,
		)
	}
	table.Render()
}
