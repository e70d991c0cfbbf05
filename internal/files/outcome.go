package files

// Outcome is the terminal state of one file synchronization
type Outcome int

const (
	OutcomeDownloaded Outcome = iota + 1
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON output
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Transfer describes one successful attempt
type Transfer struct {
	Outcome Outcome
	Bytes   int64
}

// Result describes a file after all attempts
type Result struct {
	Path     string  `json:"path"`
	Outcome  Outcome `json:"outcome"`
	Bytes    int64   `json:"bytes"`
	Attempts int     `json:"attempts"`
	Err      error   `json:"-"`
}
