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

package rbc

import "strconv"

// Snmp is a flat struct of uint64 counters with Header/ToSlice pairs so
// a host can log a CSV row per collection interval. Purely observational
// - nothing here feeds back into protocol decisions. Fields are only
// ever mutated while the owning Instance's internal mutex is held; call
// Instance.SnmpSnapshot to read a consistent copy from another
// goroutine instead of reading the embedded Snmp field directly.
type Snmp struct {
	ValueRecv        uint64
	EchoRecv         uint64
	ReadyRecv        uint64
	Delivered        uint64
	DroppedMalformed uint64
	DroppedAuth      uint64
	DroppedIntegrity uint64
	AmplifyOnEcho    uint64
	AmplifyOnReady   uint64
}

// Header returns the CSV column names, in the same order as ToSlice.
func (s *Snmp) Header() []string {
	return []string{
		"ValueRecv", "EchoRecv", "ReadyRecv", "Delivered",
		"DroppedMalformed", "DroppedAuth", "DroppedIntegrity",
		"AmplifyOnEcho", "AmplifyOnReady",
	}
}

// ToSlice snapshots the counters as strings, for CSV encoding.
func (s *Snmp) ToSlice() []string {
	return []string{
		strconv.FormatUint(s.ValueRecv, 10),
		strconv.FormatUint(s.EchoRecv, 10),
		strconv.FormatUint(s.ReadyRecv, 10),
		strconv.FormatUint(s.Delivered, 10),
		strconv.FormatUint(s.DroppedMalformed, 10),
		strconv.FormatUint(s.DroppedAuth, 10),
		strconv.FormatUint(s.DroppedIntegrity, 10),
		strconv.FormatUint(s.AmplifyOnEcho, 10),
		strconv.FormatUint(s.AmplifyOnReady, 10),
	}
}
