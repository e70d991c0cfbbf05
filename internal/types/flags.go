package types

import "time"

// GlobalFlags holds the values of the persistent command-line flags
type GlobalFlags struct {
	Config       string
	OutputFormat OutputFormat
	JSON         bool
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	DryRun       bool
	NoProgress   bool
}

// MirrorFlags holds the flags of the mirror command itself
type MirrorFlags struct {
	Excludes     []string
	ExcludeFiles []string
	BaseURL      string
	Root         string
	Retries      int
	RetryDelay   time.Duration
	Concurrency  int
	Timeout      time.Duration
}
