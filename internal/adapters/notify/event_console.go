package notify

// event_console.go — console Notifier for engine/supervisor events,
// printed line by line with an optional table of recent completed rounds.

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/nexto0/dip-arbiter/internal/domain"
)

// EventConsole implements ports.Notifier, printing one line per event and,
// when table output is enabled, rendering a table of recent round-complete
// events each time a round completes.
type EventConsole struct {
	out       io.Writer
	table     bool
	recent    []domain.Event
	maxRecent int
}

// NewEventConsole builds a console Notifier writing to stdout.
func NewEventConsole(table bool) *EventConsole {
	return &EventConsole{out: os.Stdout, table: table, maxRecent: 20}
}

// NewEventConsoleWriter builds a console Notifier writing to w, for tests.
func NewEventConsoleWriter(w io.Writer, table bool) *EventConsole {
	return &EventConsole{out: w, table: table, maxRecent: 20}
}

// Notify implements ports.Notifier.
func (c *EventConsole) Notify(_ context.Context, ev domain.Event) error {
	fmt.Fprintln(c.out, c.line(ev))

	c.recent = append(c.recent, ev)
	if len(c.recent) > c.maxRecent {
		c.recent = c.recent[len(c.recent)-c.maxRecent:]
	}
	if c.table && ev.Kind == domain.EventRoundComplete {
		c.renderTable()
	}
	return nil
}

func (c *EventConsole) line(ev domain.Event) string {
	ts := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case domain.EventStarted:
		return fmt.Sprintf("[%s] engine started on %s", ts, eventMarketLabel(*ev.Market))
	case domain.EventStopped:
		return fmt.Sprintf("[%s] engine stopped", ts)
	case domain.EventNewRound:
		return fmt.Sprintf("[%s] new round %s priceToBeat=%.4f", ts, ev.Round.ID, ev.Round.PriceToBeat)
	case domain.EventSignal:
		return fmt.Sprintf("[%s] signal leg=%v side=%s drop=%.2f%% target=%.4f profitRate=%.2f%%",
			ts, ev.Signal.Leg, ev.Signal.Side, ev.Signal.DropPercent*100, ev.Signal.TargetPrice, ev.Signal.EstimatedProfitRate*100)
	case domain.EventExecution:
		return fmt.Sprintf("[%s] execution leg=%v round=%s price=%.4f shares=%.2f ok=%v",
			ts, ev.ExecutionLeg, eventRoundID(ev), ev.FillPrice, ev.FillShares, ev.ExecutionSuccess)
	case domain.EventRoundComplete:
		return fmt.Sprintf("[%s] round %s complete status=%v profit=%.4f", ts, ev.Round.ID, ev.RoundStatus, ev.Round.Profit)
	case domain.EventPriceUpdate:
		return fmt.Sprintf("[%s] price %s=%.4f (%.2f%%)", ts, ev.Underlying, ev.PriceValue, ev.ChangePercent*100)
	case domain.EventRotate:
		return fmt.Sprintf("[%s] rotate reason=%v", ts, ev.RotateReason)
	case domain.EventSettled:
		return fmt.Sprintf("[%s] settled strategy=%v success=%v received=%.4f tx=%s",
			ts, ev.SettleStrategy, ev.SettledSuccess, ev.AmountReceived, ev.SettleTxHash)
	case domain.EventError:
		return fmt.Sprintf("[%s] error: %v", ts, ev.Err)
	default:
		return fmt.Sprintf("[%s] event kind=%v", ts, ev.Kind)
	}
}

func (c *EventConsole) renderTable() {
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Round", "Status", "Profit")
	for _, ev := range c.recent {
		if ev.Kind != domain.EventRoundComplete || ev.Round == nil {
			continue
		}
		table.Append(
			ev.Time.Format("15:04:05"),
			ev.Round.ID,
			fmt.Sprintf("%v", ev.RoundStatus),
			fmt.Sprintf("$%.4f", ev.Round.Profit),
		)
	}
	table.Render()
}

func eventMarketLabel(m domain.Market) string {
	if m.Slug != "" {
		return m.Slug
	}
	return m.ConditionID
}

func eventRoundID(ev domain.Event) string {
	if ev.Round == nil {
		return ""
	}
	return ev.Round.ID
}
