// Package doctor runs preflight checks and reports one line per check.
package doctor

import (
	"fmt"
	"io"
	"os"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Check is one named preflight check.
type Check struct {
	Name string
	// Run returns a short detail printed on success.
	Run func() (string, error)
	// Skip, when non-empty, reports the check as skipped for this reason.
	Skip string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes checks in order and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(checks []Check, w io.Writer) Result {
	var res Result

	for _, c := range checks {
		if c.Skip != "" {
			fmt.Fprintf(w, "%s %s: skipped (%s)\n", PassMark, c.Name, c.Skip)
			continue
		}

		detail, err := c.Run()
		if err != nil {
			res.fail(fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, c.Name, err)

			continue
		}

		if detail == "" {
			fmt.Fprintf(w, "%s %s\n", PassMark, c.Name)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", PassMark, c.Name, detail)
		}
	}

	return res
}

// FilesExist returns a check that fails unless every path is a regular file.
func FilesExist(name string, paths ...string) Check {
	return Check{
		Name: name,
		Run: func() (string, error) {
			for _, path := range paths {
				fi, err := os.Stat(path)
				if err != nil {
					return "", fmt.Errorf("%s not found", path)
				}

				if fi.IsDir() {
					return "", fmt.Errorf("%s is a directory", path)
				}
			}

			return fmt.Sprintf("%d file(s)", len(paths)), nil
		},
	}
}
