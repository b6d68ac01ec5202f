package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/robotalks/aicupg/pkg/cli/sh"
	"github.com/robotalks/aicupg/pkg/env"
	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/monitor/mqtt"
	"github.com/robotalks/aicupg/pkg/uart/bridge"
	"github.com/robotalks/aicupg/pkg/upg/engine"

	_ "github.com/robotalks/aicupg/pkg/cli/cmds/mem"
)

var (
	imageFile string
	memSize   = 1 << 20
	strict    = true
	resume    bool
	console   bool
)

func init() {
	env.SetupFlags()
	sh.SetupFlags()
	flag.StringVar(&imageFile, "image", imageFile, "Intel HEX image preloaded into memory.")
	flag.IntVar(&memSize, "mem", memSize, "Emulated memory size in bytes.")
	flag.BoolVar(&strict, "strict", strict, "Cancel on unexpected blocks, NAK otherwise.")
	flag.BoolVar(&resume, "resume", resume, "Resume the handshake cadence after link resets.")
	flag.BoolVar(&console, "console", console, "Run the interactive console.")
}

func main() {
	flag.Parse()
	conf := env.Default()

	link := conf.MustOpenLink()

	b := bridge.New(link, bridge.WithStrict(strict), bridge.WithFullHandshake(!resume))
	target := engine.NewMemoryTarget("aicupg-sim", memSize, b)
	if imageFile != "" {
		f, err := os.Open(imageFile)
		if err != nil {
			log.Fatalln(err)
		}
		err = target.LoadHex(f)
		f.Close()
		if err != nil {
			log.Fatalf("load %s: %v", imageFile, err)
		}
	}
	eng := engine.New(b, target)
	b.SetHandler(eng)
	if err := b.Init(); err != nil {
		log.Fatalln(err)
	}
	defer b.Deinit()
	if err := eng.Start(); err != nil {
		log.Fatalln(err)
	}

	loop := framework.NewLoop().Add(b)
	if q := conf.MustNewQueue("sim"); q != nil {
		defer q.Close()
		loop.Add(mqtt.NewReporter(q, conf.ID(), b))
	}

	runner := framework.NewRunner().HandleSignals()
	if console {
		ctx, cancel := context.WithCancel(runner.Context)
		runner.Context = ctx
		runner.Go(framework.NamedRun("console", framework.RunFunc(func(context.Context) error {
			defer cancel()
			sh.New(loop, b, eng, target).Run(flag.Args()...)
			return nil
		})))
	}
	runner.Go(loop)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
