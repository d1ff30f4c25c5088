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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/conclave-net/rbc/transport"
)

// Config is rbcnode's full runtime configuration: transport.Config plus
// the peer set and identity a node needs to build rbc.Instances on top
// of it.
type Config struct {
	transport.Config

	Self  string            `json:"self"`
	Peers map[string]string `json:"peers"` // name -> host:port

	SnmpLog    string `json:"snmplog"`
	SnmpPeriod int    `json:"snmpperiod"`
	Log        string `json:"log"`
	Pprof      bool   `json:"pprof"`
}

// DefaultConfig seeds a Config with transport.DefaultConfig and an empty
// peer set.
func DefaultConfig() Config {
	return Config{
		Config:     transport.DefaultConfig(),
		Peers:      make(map[string]string),
		SnmpPeriod: 60,
	}
}

// parsePeerFlag parses one "name=host:port" -peer flag value into the
// Peers map.
func (c *Config) parsePeerFlag(s string) error {
	name, addr, ok := strings.Cut(s, "=")
	if !ok || name == "" || addr == "" {
		return fmt.Errorf("rbcnode: malformed -peer value %q, want name=host:port", s)
	}
	c.Peers[name] = addr
	return nil
}

// loadJSONConfig overlays a JSON config file onto c, the same override
// semantics transport.LoadConfig gives the embedded transport.Config.
func loadJSONConfig(c *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(c)
}
