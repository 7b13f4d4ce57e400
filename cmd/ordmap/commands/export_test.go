package commands

// ObservabilityConfig exposes observabilityConfig for testing.
var ObservabilityConfig = observabilityConfig
