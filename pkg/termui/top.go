package termui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/embedtools/rtospy/pkg/rtos"
)

// TargetControl is the run-state control the top view needs between
// refreshes, satisfied by *gdbrsp.Client.
type TargetControl interface {
	Interrupt() error
	Resume() error
}

// TopUI renders the live threads view: halt the target, refresh the
// snapshot, resume, repeat.
type TopUI struct {
	app        *tview.Application
	table      *tview.Table
	titleView  *tview.TextView
	statusView *tview.TextView
	flex       *tview.Flex

	orch     *rtos.Orchestrator
	ctl      TargetControl
	interval int
	hold     bool // keep the target halted between refreshes
	paused   bool

	refreshChan  chan struct{}
	lastDuration time.Duration
}

func NewTopUI(orch *rtos.Orchestrator, ctl TargetControl, interval int, hold bool) *TopUI {
	app := tview.NewApplication()
	table := tview.NewTable()
	table.SetBorders(false).
		SetFixed(1, 0).
		SetBorder(false)

	ui := &TopUI{
		app:      app,
		table:    table,
		orch:     orch,
		ctl:      ctl,
		interval: interval,
		hold:     hold,
	}
	ui.titleView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	ui.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	return ui
}

var headers = []string{"ID", "Name", "State", "Prio", "Stack Used", "Stack Peak", "Stack Free", "CPU%"}

func (t *TopUI) Run() error {
	t.setHeaders()

	help := tview.NewTextView().SetDynamicColors(true)
	help.SetText("[yellow]Press [white]q[green] to quit, [white]r[green] to refresh, [white]p[green] to pause auto-refresh, [white]h[green] to toggle hold-halted")

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.titleView, 1, 1, false).
		AddItem(t.statusView, 2, 1, false).
		AddItem(t.table, 0, 1, true).
		AddItem(help, 1, 1, false)

	t.refreshChan = make(chan struct{})
	ticker := time.NewTicker(time.Duration(t.interval) * time.Second)
	defer ticker.Stop()

	t.update()

	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q':
			t.app.Stop()
			return nil
		case 'r':
			go t.app.QueueUpdateDraw(t.update)
			return nil
		case 'p':
			t.paused = !t.paused
			if !t.paused {
				t.refreshChan <- struct{}{}
			}
			return nil
		case 'h':
			t.hold = !t.hold
			return nil
		}
		return event
	})

	go func() {
		for {
			select {
			case <-ticker.C:
				if !t.paused && t.app != nil {
					t.app.QueueUpdateDraw(t.update)
				}
			case <-t.refreshChan:
				if t.app != nil {
					t.app.QueueUpdateDraw(t.update)
				}
			}
		}
	}()

	return t.app.SetRoot(t.flex, true).Run()
}

func (t *TopUI) setHeaders() {
	for col, h := range headers {
		align := tview.AlignRight
		if h == "Name" || h == "State" {
			align = tview.AlignLeft
		}
		t.table.SetCell(0, col, tview.NewTableCell(h).
			SetAlign(align).
			SetTextColor(tcell.ColorYellow).
			SetBackgroundColor(tcell.ColorDarkSlateGray))
	}
}

func (t *TopUI) update() {
	start := time.Now()
	if err := t.ctl.Interrupt(); err != nil {
		t.statusView.SetText(fmt.Sprintf("[red]halt failed: %v", err))
		return
	}
	t.orch.Refresh()
	if !t.hold {
		if err := t.ctl.Resume(); err != nil {
			t.statusView.SetText(fmt.Sprintf("[red]resume failed: %v", err))
		}
	}
	t.lastDuration = time.Since(start)
	t.render()
}

func (t *TopUI) render() {
	snap := t.orch.Snapshot()
	detection, reason := t.orch.DetectionState()

	runMode := "free-running"
	if t.hold {
		runMode = "halted"
	}
	t.titleView.SetText(fmt.Sprintf(
		"[yellow]rtospy [white]| [green]detection: %s [white]| [blue]refresh: %ds [white]| [purple]target: %s [white]| [orange]update: %v",
		detection, t.interval, runMode, t.lastDuration.Round(time.Microsecond)))

	var status []string
	if detection == rtos.DetectionFailed {
		status = append(status, fmt.Sprintf("[red]detection failed: %s", reason))
	}
	if snap == nil {
		status = append(status, "[yellow]no snapshot yet")
		t.statusView.SetText(strings.Join(status, " | "))
		return
	}
	if snap.Stale {
		status = append(status, fmt.Sprintf("[red]STALE (%s ago)", FormatDuration(time.Since(snap.TakenAt))))
	}
	if snap.Diagnostic != "" {
		status = append(status, "[red]"+snap.Diagnostic)
	}
	if snap.Warning != "" {
		status = append(status, "[yellow]"+snap.Warning)
	}
	status = append(status, fmt.Sprintf("[white]tasks: %d", len(snap.Records)))
	t.statusView.SetText(strings.Join(status, " | "))

	t.table.Clear()
	t.setHeaders()
	for row, rec := range snap.Records {
		color := stateColor(rec.State)
		cells := []string{
			taskID(rec),
			rec.Name,
			rec.State.String(),
			fmt.Sprintf("%d", rec.Priority),
			humanateBytes(rec.Stack.CurUsed),
			optBytes(rec.Stack.PeakUsed),
			optBytes(rec.Stack.Free),
			optString(rec.RuntimePct),
		}
		for col, text := range cells {
			align := tview.AlignRight
			if col == 1 || col == 2 {
				align = tview.AlignLeft
			}
			t.table.SetCell(row+1, col, tview.NewTableCell(text).
				SetAlign(align).
				SetTextColor(color))
		}
	}
}

func taskID(rec rtos.TaskRecord) string {
	if rec.ID != nil {
		return fmt.Sprintf("%d", *rec.ID)
	}
	return fmt.Sprintf("0x%x", rec.Addr)
}

func optBytes(v *uint64) string {
	if v == nil {
		return "-"
	}
	return humanateBytes(*v)
}

func optString(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func stateColor(state rtos.TaskState) tcell.Color {
	switch state {
	case rtos.StateRunning:
		return tcell.ColorGreen
	case rtos.StateBlocked:
		return tcell.ColorYellow
	case rtos.StateSuspended:
		return tcell.ColorBlue
	case rtos.StateTerminated:
		return tcell.ColorRed
	default:
		return tcell.ColorWhite
	}
}
