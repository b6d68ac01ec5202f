// Package mem adds memory commands of the emulated target to the shell.
package mem

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/aicupg/pkg/cli/sh"
	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/upg/engine"
)

func parseNum(c *ishell.Context, name, val string) (int, bool) {
	n, err := strconv.ParseUint(val, 0, 32)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s: %v", name, err))
		return 0, false
	}
	return int(n), true
}

// region parses ADDR LEN from args starting at index i.
func region(c *ishell.Context, i int) (addr, size int, ok bool) {
	if len(c.Args) < i+2 {
		c.Err(fmt.Errorf("ADDR and LEN required"))
		return
	}
	if addr, ok = parseNum(c, "ADDR", c.Args[i]); !ok {
		return
	}
	size, ok = parseNum(c, "LEN", c.Args[i+1])
	return
}

func withTarget(fn func(c *ishell.Context, s *sh.Shell, target *engine.MemoryTarget)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := sh.ShellFrom(c)
		if s.Target == nil {
			c.Err(fmt.Errorf("no memory target"))
			return
		}
		fn(c, s, s.Target)
	}
}

var (
	// DumpCmd prints a memory region.
	DumpCmd = ishell.Cmd{
		Name:    "dump",
		Aliases: []string{"d"},
		Help:    "ADDR LEN",
		Func: withTarget(func(c *ishell.Context, s *sh.Shell, target *engine.MemoryTarget) {
			addr, size, ok := region(c, 0)
			if !ok {
				return
			}
			var data []byte
			if !sh.DoCmd(c, func(framework.ControlContext) error {
				mem := target.Memory()
				if addr+size > len(mem) {
					return &engine.RangeError{Address: uint32(addr), Size: size, Limit: len(mem)}
				}
				data = append(data, mem[addr:addr+size]...)
				return nil
			}) {
				return
			}
			c.Print(hex.Dump(data))
		}),
	}

	// LoadCmd loads an Intel HEX image into memory.
	LoadCmd = ishell.Cmd{
		Name: "load",
		Help: "FILE",
		Func: withTarget(func(c *ishell.Context, s *sh.Shell, target *engine.MemoryTarget) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			f, err := os.Open(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			defer f.Close()
			if sh.DoCmd(c, func(framework.ControlContext) error {
				return target.LoadHex(f)
			}) {
				c.Println("OK")
			}
		}),
	}

	// SaveCmd writes a memory region as Intel HEX.
	SaveCmd = ishell.Cmd{
		Name: "save",
		Help: "FILE ADDR LEN",
		Func: withTarget(func(c *ishell.Context, s *sh.Shell, target *engine.MemoryTarget) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			addr, size, ok := region(c, 1)
			if !ok {
				return
			}
			f, err := os.Create(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			defer f.Close()
			if sh.DoCmd(c, func(framework.ControlContext) error {
				return target.DumpHex(f, uint32(addr), size)
			}) {
				c.Println("OK")
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&DumpCmd,
		&LoadCmd,
		&SaveCmd,
	)
}
