package exclude

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// Matcher decides whether an absolute remote path is excluded.
// The zero value and a nil *Matcher exclude nothing.
type Matcher struct {
	patterns []string
	re       *regexp.Regexp
}

// Compile combines patterns into a single matcher. Each pattern is anchored
// at the remote root; "*" matches any run of characters except "/". A
// pattern excludes the path it names and everything beneath it.
func Compile(patterns []string) (*Matcher, error) {
	var alternatives []string
	var kept []string
	for _, p := range patterns {
		normalized, err := normalize(p)
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		kept = append(kept, normalized)
		alternatives = append(alternatives, toRegexp(normalized))
	}

	if len(alternatives) == 0 {
		return &Matcher{}, nil
	}

	re, err := regexp.Compile("^(?:" + strings.Join(alternatives, "|") + ")$")
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPattern,
			fmt.Sprintf("failed to compile exclude patterns: %s", err)).Build(), err)
	}
	return &Matcher{patterns: kept, re: re}, nil
}

// MustCompile is like Compile but panics on an invalid pattern
func MustCompile(patterns ...string) *Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

func normalize(pattern string) (string, error) {
	p := strings.TrimSpace(pattern)
	if strings.Contains(p, `\`) {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPattern,
			fmt.Sprintf("exclude pattern %q contains a backslash", pattern)).
			WithContext("pattern", pattern).
			Build())
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == "" {
			return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPattern,
				fmt.Sprintf("exclude pattern %q contains an empty path segment", pattern)).
				WithContext("pattern", pattern).
				Build())
		}
	}
	return p, nil
}

// toRegexp translates one normalized pattern into an unanchored alternative
func toRegexp(pattern string) string {
	literal := strings.Split(pattern, "*")
	for i, part := range literal {
		literal[i] = regexp.QuoteMeta(part)
	}
	return "/" + strings.Join(literal, "[^/]*") + "(?:/.*)?"
}

// IsExcluded reports whether absPath (rooted at "/") is excluded.
// Directory paths may carry their trailing "/".
func (m *Matcher) IsExcluded(absPath string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.MatchString(absPath)
}

// Patterns returns the normalized patterns the matcher was built from
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// ReadPatternFile reads one pattern per line. Blank lines and lines whose
// first non-blank character is "#" are skipped; trailing whitespace is
// trimmed.
func ReadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("failed to open exclude file: %s", err)).
			WithContext("file", path).
			Build(), err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimRight(line, " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("failed to read exclude file: %s", err)).
			WithContext("file", path).
			Build(), err)
	}
	return patterns, nil
}

// Collect merges inline patterns with those read from files, in order
func Collect(inline []string, files []string) ([]string, error) {
	patterns := append([]string{}, inline...)
	for _, file := range files {
		fromFile, err := ReadPatternFile(file)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, fromFile...)
	}
	return patterns, nil
}
