package workflow

import "time"

// Metrics receives engine instrumentation.
type Metrics interface {
	RunStarted()
	RunFinished()
	StepCompleted(step, result string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RunStarted() {}
func (nopMetrics) RunFinished() {}
func (nopMetrics) StepCompleted(string, string, time.Duration) {}
