package fhirschema

import (
	"sync/atomic"
	"time"
)

// Metrics collects codec statistics.
// All counters are lock-free and safe for concurrent use.
type Metrics struct {
	decodesTotal  atomic.Uint64
	decodesFailed atomic.Uint64
	encodesTotal  atomic.Uint64
	encodesFailed atomic.Uint64

	decodeTimeTotal atomic.Uint64 // nanoseconds
	decodeTimeMin   atomic.Uint64
	decodeTimeMax   atomic.Uint64

	choicesResolved  atomic.Uint64
	unknownPreserved atomic.Uint64
	unknownDropped   atomic.Uint64
	errorsTotal      atomic.Uint64
	warningsTotal    atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.decodeTimeMin.Store(^uint64(0))
	return m
}

// RecordDecode records one decode call.
func (m *Metrics) RecordDecode(duration time.Duration, ok bool) {
	m.decodesTotal.Add(1)
	if !ok {
		m.decodesFailed.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: durations are non-negative
	m.decodeTimeTotal.Add(ns)

	for {
		current := m.decodeTimeMin.Load()
		if ns >= current || m.decodeTimeMin.CompareAndSwap(current, ns) {
			break
		}
	}
	for {
		current := m.decodeTimeMax.Load()
		if ns <= current || m.decodeTimeMax.CompareAndSwap(current, ns) {
			break
		}
	}
}

// RecordEncode records one encode call.
func (m *Metrics) RecordEncode(ok bool) {
	m.encodesTotal.Add(1)
	if !ok {
		m.encodesFailed.Add(1)
	}
}

// RecordChoice records a resolved choice variant.
func (m *Metrics) RecordChoice() {
	m.choicesResolved.Add(1)
}

// RecordUnknown records an unknown member, preserved or dropped.
func (m *Metrics) RecordUnknown(preserved bool) {
	if preserved {
		m.unknownPreserved.Add(1)
		return
	}
	m.unknownDropped.Add(1)
}

// RecordErrors adds n error issues.
func (m *Metrics) RecordErrors(n int) {
	m.errorsTotal.Add(uint64(n)) //nolint:gosec // Safe: n is a non-negative count
}

// RecordWarnings adds n warning issues.
func (m *Metrics) RecordWarnings(n int) {
	m.warningsTotal.Add(uint64(n)) //nolint:gosec // Safe: n is a non-negative count
}

// DecodesTotal returns the number of decode calls.
func (m *Metrics) DecodesTotal() uint64 { return m.decodesTotal.Load() }

// DecodesFailed returns the number of decode calls that returned an error.
func (m *Metrics) DecodesFailed() uint64 { return m.decodesFailed.Load() }

// EncodesTotal returns the number of encode calls.
func (m *Metrics) EncodesTotal() uint64 { return m.encodesTotal.Load() }

// EncodesFailed returns the number of encode calls that returned an error.
func (m *Metrics) EncodesFailed() uint64 { return m.encodesFailed.Load() }

// ChoicesResolved returns the number of choice variants decoded.
func (m *Metrics) ChoicesResolved() uint64 { return m.choicesResolved.Load() }

// UnknownPreserved returns the number of unknown members kept.
func (m *Metrics) UnknownPreserved() uint64 { return m.unknownPreserved.Load() }

// UnknownDropped returns the number of unknown members dropped.
func (m *Metrics) UnknownDropped() uint64 { return m.unknownDropped.Load() }

// ErrorsTotal returns the total error issues found.
func (m *Metrics) ErrorsTotal() uint64 { return m.errorsTotal.Load() }

// WarningsTotal returns the total warning issues found.
func (m *Metrics) WarningsTotal() uint64 { return m.warningsTotal.Load() }

// AverageDecodeTime returns the average decode duration.
func (m *Metrics) AverageDecodeTime() time.Duration {
	total := m.decodesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.decodeTimeTotal.Load() / total) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MinDecodeTime returns the fastest decode duration.
func (m *Metrics) MinDecodeTime() time.Duration {
	minVal := m.decodeTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MaxDecodeTime returns the slowest decode duration.
func (m *Metrics) MaxDecodeTime() time.Duration {
	return time.Duration(m.decodeTimeMax.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	DecodesTotal      uint64        `json:"decodesTotal"`
	DecodesFailed     uint64        `json:"decodesFailed"`
	EncodesTotal      uint64        `json:"encodesTotal"`
	EncodesFailed     uint64        `json:"encodesFailed"`
	AverageDecodeTime time.Duration `json:"averageDecodeTime"`
	ChoicesResolved   uint64        `json:"choicesResolved"`
	UnknownPreserved  uint64        `json:"unknownPreserved"`
	UnknownDropped    uint64        `json:"unknownDropped"`
	ErrorsTotal       uint64        `json:"errorsTotal"`
	WarningsTotal     uint64        `json:"warningsTotal"`
}

// Snapshot returns a copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		DecodesTotal:      m.DecodesTotal(),
		DecodesFailed:     m.DecodesFailed(),
		EncodesTotal:      m.EncodesTotal(),
		EncodesFailed:     m.EncodesFailed(),
		AverageDecodeTime: m.AverageDecodeTime(),
		ChoicesResolved:   m.ChoicesResolved(),
		UnknownPreserved:  m.UnknownPreserved(),
		UnknownDropped:    m.UnknownDropped(),
		ErrorsTotal:       m.ErrorsTotal(),
		WarningsTotal:     m.WarningsTotal(),
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.decodesTotal.Store(0)
	m.decodesFailed.Store(0)
	m.encodesTotal.Store(0)
	m.encodesFailed.Store(0)
	m.decodeTimeTotal.Store(0)
	m.decodeTimeMin.Store(^uint64(0))
	m.decodeTimeMax.Store(0)
	m.choicesResolved.Store(0)
	m.unknownPreserved.Store(0)
	m.unknownDropped.Store(0)
	m.errorsTotal.Store(0)
	m.warningsTotal.Store(0)
}
