package main

import (
	"fmt"
	"log"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/embedtools/rtospy/pkg/api"
	gbin "github.com/embedtools/rtospy/pkg/binary"
	"github.com/embedtools/rtospy/pkg/gdbrsp"
	"github.com/embedtools/rtospy/pkg/rtos"
	"github.com/embedtools/rtospy/pkg/session"
	"github.com/embedtools/rtospy/pkg/termui"
)

var (
	gitVer  string
	buildAt string
)

// inspector bundles the orchestrator with its target connection so every
// surface (CLI, top, http) refreshes the same way: halt, collect, resume.
type inspector struct {
	orch   *rtos.Orchestrator
	client *gdbrsp.Client
	bin    *gbin.Loader
	hold   bool
}

func (i *inspector) Refresh() error {
	if err := i.client.Interrupt(); err != nil {
		return err
	}
	i.orch.Refresh()
	if !i.hold {
		return i.client.Resume()
	}
	return nil
}

func (i *inspector) Snapshot() *rtos.Snapshot {
	return i.orch.Snapshot()
}

func (i *inspector) DetectionState() (rtos.DetectionState, string) {
	return i.orch.DetectionState()
}

func (i *inspector) Close() {
	i.client.Detach()
	i.client.Close()
	i.bin.Close()
}

func newInspector(elfPath, gdbAddr string, debug, hold bool) (*inspector, error) {
	logger := newLogger(debug)
	bin, err := gbin.Load(elfPath)
	if err != nil {
		return nil, err
	}
	if !bin.DWARF().HasDWARF() {
		bin.Close()
		return nil, fmt.Errorf("%s: firmware has no debug info, rebuild with -g", bin.Path())
	}
	client, err := gdbrsp.Dial(gdbAddr, logger.Named("gdbrsp"))
	if err != nil {
		bin.Close()
		return nil, err
	}
	sess := session.New(bin, client, logger.Named("session"))
	return &inspector{
		orch:   rtos.NewOrchestrator(sess, logger.Named("rtos")),
		client: client,
		bin:    bin,
		hold:   hold,
	}, nil
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := cfg.Build()
	return logger
}

func main() {
	var elfPath string
	var gdbAddr string
	var refresh int
	var port int
	var debug bool
	var hold bool

	elfFlag := &cli.StringFlag{
		Name:        "elf",
		Usage:       "firmware ELF with debug info",
		Required:    true,
		Destination: &elfPath,
	}
	gdbFlag := &cli.StringFlag{
		Name:        "gdb",
		Usage:       "gdb stub address (OpenOCD, J-Link, qemu)",
		Value:       "localhost:3333",
		Destination: &gdbAddr,
	}
	refreshFlag := &cli.IntFlag{
		Name:        "refresh",
		Usage:       "refresh interval in seconds",
		Value:       2,
		Destination: &refresh,
	}
	debugFlag := &cli.BoolFlag{
		Name:        "debug",
		Usage:       "verbose wire and engine logging",
		Destination: &debug,
	}
	holdFlag := &cli.BoolFlag{
		Name:        "hold",
		Usage:       "keep the target halted between refreshes",
		Destination: &hold,
	}

	app := &cli.App{
		Name:  "rtospy",
		Usage: "inspect FreeRTOS tasks on a halted embedded target",
		Commands: []*cli.Command{
			{
				Name:    "tasks",
				Aliases: []string{"t"},
				Usage:   "dump the task list once as a table",
				Flags: []cli.Flag{elfFlag, gdbFlag, debugFlag,
					&cli.BoolFlag{Name: "no-color", Usage: "don't colorize output"}},
				Action: func(c *cli.Context) error {
					insp, err := newInspector(elfPath, gdbAddr, debug, false)
					if err != nil {
						return err
					}
					defer insp.Close()
					if err := insp.Refresh(); err != nil {
						return err
					}
					return printSnapshot(insp, c.Bool("no-color"))
				},
			},
			{
				Name:  "top",
				Usage: "live threads view",
				Flags: []cli.Flag{elfFlag, gdbFlag, refreshFlag, holdFlag, debugFlag},
				Action: func(c *cli.Context) error {
					insp, err := newInspector(elfPath, gdbAddr, debug, hold)
					if err != nil {
						return err
					}
					defer insp.Close()
					ui := termui.NewTopUI(insp.orch, insp.client, refresh, hold)
					return ui.Run()
				},
			},
			{
				Name:  "serve",
				Usage: "expose snapshots over an http json api",
				Flags: []cli.Flag{elfFlag, gdbFlag, debugFlag,
					&cli.IntFlag{Name: "port", Value: 8972, Destination: &port}},
				Action: func(c *cli.Context) error {
					insp, err := newInspector(elfPath, gdbAddr, debug, false)
					if err != nil {
						return err
					}
					defer insp.Close()
					return api.NewServer(port, insp, newLogger(debug).Named("api")).Start()
				},
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "print build version",
				Action: func(c *cli.Context) error {
					fmt.Println("Git: " + gitVer)
					fmt.Println("Build at: " + buildAt)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func printSnapshot(insp *inspector, noColor bool) error {
	snap := insp.Snapshot()
	state, reason := insp.DetectionState()
	if snap == nil {
		return fmt.Errorf("no snapshot (detection %s: %s)", state, reason)
	}
	if snap.Diagnostic != "" {
		fmt.Println("diagnostic:", snap.Diagnostic)
	}
	if snap.Warning != "" {
		fmt.Println("warning:", snap.Warning)
	}
	fmt.Printf("tasks: %d (declared %d), collected in %v\n\n",
		len(snap.Records), snap.DeclaredCount, snap.Elapsed)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator("")
	table.SetHeader([]string{"ID", "Name", "State", "Prio", "Stack Used", "Stack Size", "Stack Peak", "Stack Free", "CPU%"})
	for _, rec := range snap.Records {
		id := fmt.Sprintf("0x%x", rec.Addr)
		if rec.ID != nil {
			id = fmt.Sprintf("%d", *rec.ID)
		}
		row := []string{
			id,
			rec.Name,
			rec.State.String(),
			fmt.Sprintf("%d", rec.Priority),
			fmt.Sprintf("%d", rec.Stack.CurUsed),
			optCell(rec.Stack.Size),
			optCell(rec.Stack.PeakUsed),
			optCell(rec.Stack.Free),
			optStrCell(rec.RuntimePct),
		}
		if noColor {
			table.Append(row)
			continue
		}
		color := tablewriter.Colors{tablewriter.FgWhiteColor}
		switch rec.State {
		case rtos.StateRunning:
			color = tablewriter.Colors{tablewriter.FgGreenColor}
		case rtos.StateBlocked:
			color = tablewriter.Colors{tablewriter.FgYellowColor}
		case rtos.StateSuspended:
			color = tablewriter.Colors{tablewriter.FgBlueColor}
		case rtos.StateTerminated:
			color = tablewriter.Colors{tablewriter.FgRedColor}
		}
		colors := make([]tablewriter.Colors, len(row))
		for i := range colors {
			colors[i] = color
		}
		table.Rich(row, colors)
	}
	table.Render()
	return nil
}

func optCell(v *uint64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func optStrCell(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
