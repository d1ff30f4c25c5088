// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/conclave-net/rbc/rbc"
	"github.com/conclave-net/rbc/transport"
)

// VERSION is injected by build flags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "rbcnode"
	app.Usage = "reliable broadcast node"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen, l", Value: ":29900", Usage: "local KCP listen address"},
		cli.StringSliceFlag{Name: "peer, p", Usage: `peer address as "name=host:port", repeatable`},
		cli.StringFlag{Name: "self", Usage: "this node's peer name; must match one -peer entry"},
		cli.StringFlag{Name: "key", Value: "it's a secret", Usage: "pre-shared secret between all peers", EnvVar: "RBCNODE_KEY"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "aes, aes-128, aes-128-gcm, aes-192, salsa20, blowfish, twofish, cast5, 3des, tea, xtea, xor, sm4, none, null"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal, manual"},
		cli.IntFlag{Name: "mtu", Value: 1350},
		cli.IntFlag{Name: "sndwnd", Value: 128},
		cli.IntFlag{Name: "rcvwnd", Value: 512},
		cli.BoolFlag{Name: "nocomp", Usage: "disable snappy compression"},
		cli.IntFlag{Name: "smuxver", Value: 2},
		cli.IntFlag{Name: "smuxbuf", Value: 4194304},
		cli.IntFlag{Name: "framesize", Value: 8192},
		cli.IntFlag{Name: "streambuf", Value: 2097152},
		cli.IntFlag{Name: "keepalive", Value: 10},
		cli.IntFlag{Name: "scavengettl", Value: 600},
		cli.IntFlag{Name: "scavengeperiod", Value: 5},
		cli.StringFlag{Name: "snmplog", Usage: "counter log file name, stored in the config; rbcnode writes no counter log"},
		cli.IntFlag{Name: "snmpperiod", Value: 60},
		cli.StringFlag{Name: "log", Usage: "specify a log file to output, default goes to stderr"},
		cli.StringFlag{Name: "c", Usage: "config from json file, overrides the flags above"},
		cli.BoolFlag{Name: "pprof", Usage: "start profiling server on :6060"},
		cli.StringFlag{Name: "broadcast", Usage: "topic to broadcast on, one-shot mode"},
		cli.StringFlag{Name: "broadcast-file", Usage: "file to read the broadcast payload from, required with -broadcast"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := DefaultConfig()
	cfg.Listen = c.String("listen")
	cfg.Self = c.String("self")
	cfg.Key = c.String("key")
	cfg.Crypt = c.String("crypt")
	cfg.Mode = c.String("mode")
	cfg.MTU = c.Int("mtu")
	cfg.SndWnd = c.Int("sndwnd")
	cfg.RcvWnd = c.Int("rcvwnd")
	cfg.NoComp = c.Bool("nocomp")
	cfg.SmuxVer = c.Int("smuxver")
	cfg.SmuxBuf = c.Int("smuxbuf")
	cfg.FrameSize = c.Int("framesize")
	cfg.StreamBuf = c.Int("streambuf")
	cfg.KeepAlive = c.Int("keepalive")
	cfg.ScavengeTTL = c.Int("scavengettl")
	cfg.ScavengePeriod = c.Int("scavengeperiod")
	cfg.SnmpLog = c.String("snmplog")
	cfg.SnmpPeriod = c.Int("snmpperiod")
	cfg.Log = c.String("log")
	cfg.Pprof = c.Bool("pprof")

	for _, p := range c.StringSlice("peer") {
		if err := cfg.parsePeerFlag(p); err != nil {
			return err
		}
	}

	if path := c.String("c"); path != "" {
		if err := loadJSONConfig(&cfg, path); err != nil {
			return err
		}
	}
	cfg.ApplyMode()

	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if cfg.Self == "" {
		return fmt.Errorf("rbcnode: -self is required")
	}
	if _, ok := cfg.Peers[cfg.Self]; !ok {
		return fmt.Errorf("rbcnode: -self %q does not match any -peer entry", cfg.Self)
	}

	n := len(cfg.Peers)
	f := (n - 1) / 3
	log.Printf("version: %s", VERSION)
	log.Printf("peers: %d, f: %d, self: %s", n, f, cfg.Self)
	log.Printf("crypt: %s, mode: %s, compression: %v", cfg.Crypt, cfg.Mode, !cfg.NoComp)

	if n < 4 && n != 1 {
		color.Red("WARNING: %d peers configured; reliable broadcast tolerates no faults below n=4 (n=1 loopback is the only meaningful exception)", n)
	}
	if cfg.ScavengeTTL > cfg.ScavengePeriod*120 {
		color.Red("WARNING: scavengettl is large relative to scavengeperiod; expired rounds may accumulate before being collected")
	}

	if cfg.Pprof {
		go func() {
			log.Println(http.ListenAndServe("localhost:6060", nil))
		}()
	}

	nd := newNode(cfg)
	listener, err := transport.Listen(cfg.Config)
	if err != nil {
		return err
	}
	go nd.serve(listener)

	if cfg.ScavengePeriod > 0 {
		go func() {
			ttl := time.Duration(cfg.ScavengeTTL) * time.Second
			for range time.Tick(time.Duration(cfg.ScavengePeriod) * time.Second) {
				nd.mu.Lock()
				insts := make([]*rbc.Instance[string], 0, len(nd.instances))
				for _, inst := range nd.instances {
					insts = append(insts, inst)
				}
				nd.mu.Unlock()
				for _, inst := range insts {
					inst.ExpireRounds(ttl)
				}
			}
		}()
	}

	if err := nd.dialPeers(); err != nil {
		return err
	}

	if topic := c.String("broadcast"); topic != "" {
		return runBroadcast(nd, topic, c.String("broadcast-file"))
	}

	select {} // serve forever
}

func runBroadcast(nd *node, topic, path string) error {
	if path == "" {
		return fmt.Errorf("rbcnode: -broadcast-file is required with -broadcast")
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	delivered := make(chan []byte, 1)
	sink := rbc.FuncSink(func(p []byte) {
		select {
		case delivered <- p:
		default:
		}
	})

	inst, err := nd.joinTopic(topic, sink)
	if err != nil {
		return err
	}
	if err := inst.Broadcast(payload); err != nil {
		return err
	}

	select {
	case p := <-delivered:
		fmt.Printf("delivered %d bytes on topic %q\n", len(p), topic)
	case <-time.After(30 * time.Second):
		return fmt.Errorf("rbcnode: no delivery within 30s")
	}
	return nil
}
