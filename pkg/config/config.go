package config

import "time"

// Remote source limits
const (
	// MaxBlockSamples caps one fetch at the remote source's maximum
	// response size. One update pass requests blocks of at most this
	// many ticks and merges them in time order.
	MaxBlockSamples = 8928

	FetchTimeout = 30 * time.Second
)

// Storage defaults
const (
	DefaultDataDir     = "./data/emonmirror"
	DefaultMaxMemoryMB = 48

	// SeriesChunkTicks is how many grid values are packed into one
	// compressed storage chunk.
	SeriesChunkTicks = 4096
)

// Aggregation defaults
const (
	// DefaultMissingTolerance is the allowed fraction of missing samples
	// in a period before its energy result is declared missing.
	DefaultMissingTolerance = 0.1

	DefaultPeriod     = "month"
	DefaultEnergyUnit = "kWh"
)

// API server configuration
const (
	DefaultPort        = "8080"
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
