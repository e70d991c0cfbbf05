package scanner

import (
	"strings"
	"time"
)

// RemoteEntry is one row of a directory listing. Name is a single path
// component; sub-directories carry a trailing "/".
type RemoteEntry struct {
	Name         string
	LastModified time.Time
}

// IsDir reports whether the entry names a sub-directory
func (e RemoteEntry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// Matcher decides whether an absolute remote path is excluded from the walk
type Matcher interface {
	IsExcluded(absPath string) bool
}
