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

package transport

import (
	"encoding/json"
	"os"
)

// Config holds everything needed to dial or listen for one KCP+smux link
// between two RBC peers. The zero value is not usable; build one with
// DefaultConfig and override fields, or load one from JSON with
// LoadConfig.
type Config struct {
	Listen string `json:"listen"`
	Key    string `json:"key"`
	Crypt  string `json:"crypt"`
	Mode   string `json:"mode"`

	MTU    int `json:"mtu"`
	SndWnd int `json:"sndwnd"`
	RcvWnd int `json:"rcvwnd"`

	NoDelay      int `json:"nodelay"`
	Interval     int `json:"interval"`
	Resend       int `json:"resend"`
	NoCongestion int `json:"nc"`

	NoComp bool `json:"nocomp"`

	SmuxVer   int `json:"smuxver"`
	SmuxBuf   int `json:"smuxbuf"`
	FrameSize int `json:"framesize"`
	StreamBuf int `json:"streambuf"`
	KeepAlive int `json:"keepalive"`

	ScavengeTTL    int `json:"scavengettl"`
	ScavengePeriod int `json:"scavengeperiod"`
}

// DefaultConfig returns a Config pre-populated with the "fast" KCP
// profile and sensible smux knobs, so a caller only needs to set Listen
// and Key.
func DefaultConfig() Config {
	return Config{
		Crypt:          "aes",
		Mode:           "fast",
		MTU:            1350,
		SndWnd:         128,
		RcvWnd:         512,
		SmuxVer:        2,
		SmuxBuf:        4194304,
		FrameSize:      8192,
		StreamBuf:      2097152,
		KeepAlive:      10,
		ScavengeTTL:    600,
		ScavengePeriod: 5,
	}
}

// ApplyMode fills in NoDelay/Interval/Resend/NoCongestion from one of the
// named profiles, overriding whatever was there before. Unknown names
// leave the fields untouched (the manual profile).
func (c *Config) ApplyMode() {
	switch c.Mode {
	case "normal":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 0, 40, 2, 1
	case "fast":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 0, 30, 2, 1
	case "fast2":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 1, 20, 2, 1
	case "fast3":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 1, 10, 2, 1
	}
}

// LoadConfig reads a JSON file and overlays it onto an existing Config,
// the same override semantics a caller gets by combining DefaultConfig
// with command-line flags first.
func LoadConfig(c *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(c)
}
