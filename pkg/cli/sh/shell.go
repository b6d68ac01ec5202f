// Package sh provides the interactive console of the upgrade device
// emulator.
package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/monitor/mqtt"
	"github.com/robotalks/aicupg/pkg/uart/bridge"
	"github.com/robotalks/aicupg/pkg/uart/comm"
	"github.com/robotalks/aicupg/pkg/uart/link"
	"github.com/robotalks/aicupg/pkg/upg/engine"
)

// CommandTimeout bounds the wait for the loop to run a command.
const CommandTimeout = time.Second

// Shell provides ishell backed interactive console. Commands touching
// the bridge run on the loop goroutine.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Loop   framework.LoopControl
	Bridge *bridge.Bridge
	Engine *engine.Engine
	Target *engine.MemoryTarget
}

const shellKey = "$shell"

var (
	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&StatusCmd,
		&StatsCmd,
		&TasksCmd,
		&BaudCmd,
		&ResetCmd,
		&PortsCmd,
	}
)

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(loop framework.LoopControl, b *bridge.Bridge, e *engine.Engine, target *engine.MemoryTarget) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Loop:   loop,
		Bridge: b,
		Engine: e,
		Target: target,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("aicupg > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Do runs fn on the loop goroutine and waits for its result.
func (s *Shell) Do(fn func(framework.ControlContext) error) error {
	done := make(chan error, 1)
	s.Loop.PreRunAt(framework.PrLvTop, framework.ControlFunc(func(cc framework.ControlContext) error {
		done <- fn(cc)
		return nil
	}))
	select {
	case err := <-done:
		return err
	case <-time.After(CommandTimeout):
		return context.DeadlineExceeded
	}
}

// DoCmd runs fn on the loop and reports the error to the shell.
func DoCmd(c *ishell.Context, fn func(framework.ControlContext) error) bool {
	if err := ShellFrom(c).Do(fn); err != nil {
		c.Err(err)
		return false
	}
	return true
}

// Run runs the shell, args are processed as a single command.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
	}
}

// FormatSnapshot prints a bridge snapshot for display.
func FormatSnapshot(snap bridge.Snapshot) string {
	if !snap.Ready {
		return fmt.Sprintf("not ready, baudrate %d", snap.Baudrate)
	}
	var w strings.Builder
	fmt.Fprintf(&w, "%s %s, %d pending, baudrate %d", snap.Conn, snap.Stage, snap.Pending, snap.Baudrate)
	if snap.PendingBaudrate != 0 {
		fmt.Fprintf(&w, " (-> %d)", snap.PendingBaudrate)
	}
	if len(snap.Timeline) > 0 {
		stages := make([]string, len(snap.Timeline))
		for n, stage := range snap.Timeline {
			stages[n] = stage.String()
		}
		fmt.Fprintf(&w, "\ntimeline: %s", strings.Join(stages, " > "))
	}
	return w.String()
}

// FormatTask prints a queued transfer for display.
func FormatTask(t *comm.Task) string {
	return fmt.Sprintf("%s %d/%d %s", t.Dir, t.Transferred, t.Length, t.Status)
}

func (s *Shell) tasks() (lines []string, err error) {
	err = s.Do(func(framework.ControlContext) error {
		session := s.Bridge.Session()
		if session == nil {
			return comm.ErrNotReady
		}
		session.Tasks(func(t *comm.Task) {
			lines = append(lines, FormatTask(t))
		})
		return nil
	})
	return
}

func (s *Shell) snapshot() (snap bridge.Snapshot, state engine.State, err error) {
	err = s.Do(func(framework.ControlContext) error {
		snap = s.Bridge.Snapshot()
		if s.Engine != nil {
			state = s.Engine.State()
		}
		return nil
	})
	return
}

var (
	// StatusCmd shows the bridge state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			snap, state, err := s.snapshot()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				out, err := mqtt.EncodeEvent(mqtt.StatusEvent(time.Now(), snap))
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Println(FormatSnapshot(snap))
			c.Printf("engine: %s\n", state)
		},
	}

	// StatsCmd shows the counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var engineStats engine.Stats
			snap, _, err := s.snapshot()
			if err == nil && s.Engine != nil {
				err = s.Do(func(framework.ControlContext) error {
					engineStats = s.Engine.Stats()
					return nil
				})
			}
			if err != nil {
				c.Err(err)
				return
			}
			st := snap.Stats
			c.Printf("frames: sent %d received %d duplicates %d retransmits %d\n",
				st.FramesSent, st.FramesReceived, st.Duplicates, st.Retransmits)
			c.Printf("naks: sent %d received %d, aborts %d\n", st.NAKsSent, st.NAKsReceived, st.Aborts)
			c.Printf("commands: %d failed %d invalid %d aborted %d\n",
				engineStats.Commands, engineStats.Failed, engineStats.InvalidCBWs, engineStats.Aborted)
		},
	}

	// TasksCmd lists the queued transfers, the active one first.
	TasksCmd = ishell.Cmd{
		Name:    "tasks",
		Aliases: []string{"t"},
		Help:    "",
		Func: func(c *ishell.Context) {
			lines, err := ShellFrom(c).tasks()
			if err != nil {
				c.Err(err)
				return
			}
			if len(lines) == 0 {
				c.Println("No transfers queued")
				return
			}
			for _, line := range lines {
				c.Println(line)
			}
		},
	}

	// BaudCmd shows or requests a baud rate change.
	BaudCmd = ishell.Cmd{
		Name:    "baud",
		Aliases: []string{"b"},
		Help:    "[RATE]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) == 0 {
				snap, _, err := s.snapshot()
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(snap.Baudrate)
				return
			}
			rate, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("invalid RATE: %v", err))
				return
			}
			if DoCmd(c, func(framework.ControlContext) error {
				return s.Bridge.RequestBaudrate(rate)
			}) {
				c.Println("OK")
			}
		},
	}

	// ResetCmd returns the link to detecting.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if DoCmd(c, func(framework.ControlContext) error {
				s.Bridge.Reset()
				return nil
			}) {
				c.Println("OK")
			}
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"ls"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ports, err := link.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, p := range ports {
				if p.USB {
					c.Printf("%s %s:%s %s %s\n", p.Name, p.VID, p.PID, p.Serial, p.Product)
				} else {
					c.Println(p.Name)
				}
			}
		},
	}
)
