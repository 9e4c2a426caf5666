package service

import "github.com/codewandler/docstream-go/core/metrics"

// Metrics defines the instrumentation of a Service. Value types are passed
// as short type names; implementations should be thread-safe.
type Metrics interface {
	// Reads
	FetchDuration(valueType string) metrics.Timer
	Decoded(valueType string, outcome string)

	// Live subscriptions
	SubscriptionStarted(valueType string)
	SubscriptionStopped(valueType string)
	StoreErrorDropped(valueType string)

	// Writes
	WriteDuration(valueType string) metrics.Timer
	Written(valueType string, success bool)
}

// OutcomeSuccess is the decode outcome label of a successful decode. Failures
// use the DecodeError kind name.
const OutcomeSuccess = "success"

type nopMetrics struct{}

func (nopMetrics) FetchDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) Decoded(string, string)             {}

func (nopMetrics) SubscriptionStarted(string) {}
func (nopMetrics) SubscriptionStopped(string) {}
func (nopMetrics) StoreErrorDropped(string)   {}

func (nopMetrics) WriteDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) Written(string, bool)               {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
