package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/robotalks/aicupg/pkg/env"
	"github.com/robotalks/aicupg/pkg/framework"
	"github.com/robotalks/aicupg/pkg/upg/host"
)

var (
	hexFile  string
	verify   = true
	fastBaud int
	timeout  = host.DefaultTimeout
)

func init() {
	env.SetupFlags()
	flag.StringVar(&hexFile, "hex", hexFile, "Intel HEX image to flash.")
	flag.BoolVar(&verify, "verify", verify, "Read back and verify flashed data.")
	flag.IntVar(&fastBaud, "fast", fastBaud, "Switch to this baud rate before flashing.")
	flag.DurationVar(&timeout, "timeout", timeout, "Timeout waiting for the device.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)
	conf := env.Default()

	link := conf.MustOpenLink()
	ctx, cancel := context.WithCancel(context.Background())
	runner := framework.NewRunnerWith(ctx).Go(link)
	defer func() {
		cancel()
		runner.Wait()
	}()

	c := host.NewClient(link)
	c.Timeout = timeout
	if err := c.Connect(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	info, err := c.Info()
	if err != nil {
		log.Fatalf("info: %v", err)
	}
	log.Printf("device %q version %#x memory %d bytes", info.Name, info.Version, info.MemSize)

	if fastBaud > 0 {
		if err := c.SetBaudrate(fastBaud); err != nil {
			log.Fatalf("baudrate %d: %v", fastBaud, err)
		}
		log.Printf("baudrate %d", fastBaud)
	}
	if hexFile == "" {
		return
	}
	f, err := os.Open(hexFile)
	if err != nil {
		log.Fatalln(err)
	}
	defer f.Close()
	start := time.Now()
	n, err := c.FlashHex(f, verify)
	if err != nil {
		log.Fatalf("flash %s: %v", hexFile, err)
	}
	elapsed := time.Since(start)
	log.Printf("flashed %d bytes in %s (%.1f KB/s)", n, elapsed.Round(time.Millisecond), float64(n)/1024/elapsed.Seconds())
}
