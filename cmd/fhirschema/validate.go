package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gofhir/fhirschema/batch"
	"github.com/gofhir/fhirschema/issue"
)

// ValidationOutput is the JSON output of one validated document.
type ValidationOutput struct {
	Resource     string        `json:"resource"`
	ResourceType string        `json:"resourceType,omitempty"`
	Valid        bool          `json:"valid"`
	Errors       int           `json:"errors"`
	Warnings     int           `json:"warnings"`
	Info         int           `json:"info"`
	Duration     string        `json:"duration,omitempty"`
	Issues       []IssueOutput `json:"issues,omitempty"`
}

// IssueOutput is the JSON output of one issue.
type IssueOutput struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
	MessageID   string   `json:"messageId,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	var bundle bool
	cmd := &cobra.Command{
		Use:   "validate [file|glob|-]...",
		Short: "Validate resources and report issues",
		Example: `  fhirschema validate patient.json
  fhirschema validate --strict -o json *.json
  fhirschema validate -f xml bundle/*.xml
  fhirschema validate --bundle transaction.json
  cat patient.json | fhirschema validate -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate(cmd, args, bundle)
		},
	}
	cmd.Flags().BoolVar(&bundle, "bundle", false, "validate the entry resources of JSON Bundles one by one")
	return cmd
}

func (a *app) validate(cmd *cobra.Command, args []string, bundle bool) error {
	jobs, err := readInputs(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	runner := batch.NewValidating(a.validateFunc(), a.cfg.Workers).WithLogger(a.log)
	var b *batch.Batch
	if bundle {
		if a.cfg.Format != "json" {
			return fmt.Errorf("--bundle requires json input")
		}
		b, err = a.validateBundles(cmd, runner, jobs)
		if err != nil {
			return err
		}
	} else {
		b = runner.Run(cmd.Context(), jobs)
	}

	out := cmd.OutOrStdout()
	outputs := make([]ValidationOutput, 0, len(b.Results))
	for _, res := range b.Results {
		o := toOutput(res)
		outputs = append(outputs, o)
		if a.cfg.Output == "text" {
			a.printText(out, o)
		}
	}

	if a.cfg.Output == "json" {
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}

	a.log.Info().
		Int("documents", len(b.Results)).
		Int("failed", b.ErrorCount()).
		Dur("took", b.TotalDuration).
		Msg("validation finished")

	if b.HasErrors() {
		return &exitError{code: 1}
	}
	return nil
}

// validateBundles validates the entries of each bundle in jobs. Results
// are named "<source>#<entry>".
func (a *app) validateBundles(cmd *cobra.Command, runner *batch.Runner, jobs []batch.Job) (*batch.Batch, error) {
	start := time.Now()
	b := &batch.Batch{}
	for _, job := range jobs {
		err := runner.StreamBundle(cmd.Context(), bytes.NewReader(job.Data), func(res *batch.Result) {
			res.ID = job.ID + "#" + res.ID
			res.Index = len(b.Results)
			b.Results = append(b.Results, res)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", job.ID, err)
		}
	}
	b.TotalDuration = time.Since(start)
	return b, nil
}

func toOutput(res *batch.Result) ValidationOutput {
	o := ValidationOutput{
		Resource:     res.ID,
		ResourceType: res.ResourceType,
		Duration:     res.Duration.Round(time.Microsecond).String(),
	}

	report := res.Issues
	if report == nil {
		// Cancelled before the document was processed.
		report = issue.NewResult()
		if res.Err != nil {
			report.AddError(issue.CodeProcessing, res.Err.Error())
		}
	}

	o.Valid = !report.HasErrors()
	o.Errors = report.ErrorCount()
	o.Warnings = report.WarningCount()
	o.Info = report.InfoCount()
	for _, iss := range report.Issues {
		out := IssueOutput{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
			MessageID:   iss.MessageID,
		}
		if iss.Location != nil {
			out.Line, out.Column = iss.Location.Line, iss.Location.Column
		}
		o.Issues = append(o.Issues, out)
	}
	return o
}

func (a *app) printText(w io.Writer, o ValidationOutput) {
	if a.cfg.Quiet && o.Valid {
		return
	}
	status := "VALID"
	if !o.Valid {
		status = "INVALID"
	}

	fmt.Fprintf(w, "== %s ==\n", o.Resource)
	if o.ResourceType != "" {
		fmt.Fprintf(w, "Resource: %s\n", o.ResourceType)
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Errors: %d, Warnings: %d, Info: %d\n", o.Errors, o.Warnings, o.Info)

	if len(o.Issues) > 0 {
		fmt.Fprintln(w, "\nIssues:")
		for _, iss := range o.Issues {
			if a.cfg.Quiet && iss.Severity == string(issue.SeverityInformation) {
				continue
			}
			where := ""
			if len(iss.Expression) > 0 {
				where = " @ " + strings.Join(iss.Expression, ", ")
			}
			if iss.Line > 0 {
				where += fmt.Sprintf(" (line %d, col %d)", iss.Line, iss.Column)
			}
			fmt.Fprintf(w, "  %s [%s] %s%s\n", severityLabel(iss.Severity), iss.Code, iss.Diagnostics, where)
		}
	}
	fmt.Fprintln(w)
}

func severityLabel(severity string) string {
	switch issue.Severity(severity) {
	case issue.SeverityFatal:
		return "FATAL"
	case issue.SeverityError:
		return "ERROR"
	case issue.SeverityWarning:
		return "WARN "
	default:
		return "INFO "
	}
}

// readInputs expands file arguments and glob patterns into jobs named
// after their source. No arguments or "-" reads standard input.
func readInputs(stdin io.Reader, args []string) ([]batch.Job, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}

	var jobs []batch.Job
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			jobs = append(jobs, batch.Job{ID: "stdin", Data: data})
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, batch.Job{ID: path, Data: data})
		}
	}
	return jobs, nil
}
