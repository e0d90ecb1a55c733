package output

import (
	"fmt"
	"io"
	"os"

	"github.com/tracekit/ci-harness/pkg/runner"
)

// Reporter writes run reports to the terminal and optionally a file.
type Reporter struct {
	formatter  *Formatter
	out        io.Writer
	reportFile string
}

// NewReporter creates a reporter writing the text summary to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		formatter: NewFormatter(),
		out:       out,
	}
}

// WithReportFile additionally writes a markdown report to path.
func (r *Reporter) WithReportFile(path string) *Reporter {
	r.reportFile = path
	return r
}

// Report emits the run result.
func (r *Reporter) Report(result *runner.RunResult) error {
	if _, err := fmt.Fprint(r.out, r.formatter.FormatText(result)); err != nil {
		return err
	}

	if r.reportFile != "" {
		markdown := r.formatter.FormatMarkdown(result)
		if err := os.WriteFile(r.reportFile, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("write report file: %w", err)
		}
	}
	return nil
}
