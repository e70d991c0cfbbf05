package utils

import "time"

// Upstream defaults
const (
	DefaultBaseURL  = "https://myrient.erista.me/files"
	DefaultRootPath = "/"
)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 2000
	MaxRetries          = 10
	MaxRetryDelayMs     = 60000
)

// Transfer configuration
const (
	DefaultChunkSize          = 8 * 1024 // 8 KiB
	MinChunkSize              = 512
	MaxChunkSize              = 4 * 1024 * 1024 // 4 MiB
	DefaultConcurrency        = 1
	MaxConcurrency            = 32
	DefaultRequestTimeoutSecs = 60
	TempFileSuffix            = ".tmp"
)

// ProgressInterval bounds how often a progress bar redraws
const ProgressInterval = 100 * time.Millisecond

// Schema version
const SchemaVersion = "1.0"
