package metrics

import (
	"sync"
	"time"
)

type SweepMetric struct {
	Sweep     int
	Backups   int
	MaxChange float64
	Duration  time.Duration
}

type RunMetric struct {
	Operator  string
	Agents    int
	States    int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Backups   int
	MaxChange float64 // Of the last sweep
	Sweeps    []SweepMetric
}

type Collector interface {
	Start(operator string, agents, states int)
	AddBackup()
	AddSweep(maxChange float64)
	Complete() RunMetric
}

type collector struct {
	mu         sync.Mutex
	run        RunMetric
	sweepStart time.Time
	sweepCount int
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) Start(operator string, agents, states int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.run = RunMetric{
		Operator:  operator,
		Agents:    agents,
		States:    states,
		StartTime: now,
	}
	m.sweepStart = now
	m.sweepCount = 0
}

func (m *collector) AddBackup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run.Backups++
	m.sweepCount++
}

func (m *collector) AddSweep(maxChange float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.run.Sweeps = append(m.run.Sweeps, SweepMetric{
		Sweep:     len(m.run.Sweeps) + 1,
		Backups:   m.sweepCount,
		MaxChange: maxChange,
		Duration:  now.Sub(m.sweepStart),
	})
	m.run.MaxChange = maxChange
	m.sweepStart = now
	m.sweepCount = 0
}

func (m *collector) Complete() RunMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run.EndTime = time.Now()
	m.run.Duration = m.run.EndTime.Sub(m.run.StartTime)
	run := m.run
	run.Sweeps = append([]SweepMetric(nil), m.run.Sweeps...)
	return run
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(operator string, agents, states int) {}
func (m *dummyCollector) AddBackup()                                {}
func (m *dummyCollector) AddSweep(maxChange float64)                {}
func (m *dummyCollector) Complete() RunMetric                       { return RunMetric{} }
