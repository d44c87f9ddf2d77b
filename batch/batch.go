package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/stream"

	"github.com/gofhir/fhirschema/codec"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/record"
)

// ErrInvalid is wrapped by the Err of a validated document whose report
// contains errors.
var ErrInvalid = errors.New("batch: document is invalid")

// DecodeFunc decodes one document, e.g. (*codec.Codec).Decode or
// (*codec.Codec).DecodeXML.
type DecodeFunc func(data []byte) (*record.Record, error)

// ValidateFunc reports the issues of one document, e.g.
// (*codec.Codec).Validate or (*codec.Codec).ValidateXML.
type ValidateFunc func(data []byte) *issue.Result

// Job is one document to decode.
type Job struct {
	// ID identifies the job in results. Empty IDs are replaced with a UUID.
	ID   string
	Data []byte
}

// Result is the outcome of one job.
type Result struct {
	ID           string
	Index        int
	ResourceType string
	Record       *record.Record
	Issues       *issue.Result
	Err          error
	Duration     time.Duration
}

// Batch aggregates the results of one run, in input order.
type Batch struct {
	Results       []*Result
	TotalDuration time.Duration
}

// HasErrors reports whether any document failed.
func (b *Batch) HasErrors() bool {
	return b.ErrorCount() > 0
}

// ErrorCount returns the number of failed documents.
func (b *Batch) ErrorCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Failed returns the results of failed documents.
func (b *Batch) Failed() []*Result {
	var out []*Result
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Runner decodes documents with bounded parallelism.
type Runner struct {
	work    func(data []byte) (*record.Record, *issue.Result, error)
	workers int
	logger  zerolog.Logger
}

// New creates a Runner. If workers <= 0, it defaults to runtime.NumCPU().
func New(decode DecodeFunc, workers int) *Runner {
	return newRunner(func(data []byte) (*record.Record, *issue.Result, error) {
		rec, err := decode(data)
		return rec, nil, err
	}, workers)
}

// NewValidating creates a Runner that records a full issue report per
// document instead of a record. Documents with error issues fail with an
// error wrapping ErrInvalid.
func NewValidating(validate ValidateFunc, workers int) *Runner {
	return newRunner(func(data []byte) (*record.Record, *issue.Result, error) {
		res := validate(data)
		if n := res.ErrorCount(); n > 0 {
			return nil, res, fmt.Errorf("%w: %d error(s)", ErrInvalid, n)
		}
		return nil, res, nil
	}, workers)
}

func newRunner(work func([]byte) (*record.Record, *issue.Result, error), workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{work: work, workers: workers, logger: zerolog.Nop()}
}

// WithLogger sets the logger used to report failed documents.
func (r *Runner) WithLogger(l zerolog.Logger) *Runner {
	r.logger = l
	return r
}

// Workers returns the parallelism bound.
func (r *Runner) Workers() int {
	return r.workers
}

// Decode decodes docs and assigns each a generated job ID.
func (r *Runner) Decode(ctx context.Context, docs [][]byte) *Batch {
	jobs := make([]Job, len(docs))
	for i, data := range docs {
		jobs[i] = Job{Data: data}
	}
	return r.Run(ctx, jobs)
}

// Run decodes jobs in parallel. Jobs not started before ctx is done fail
// with the context error.
func (r *Runner) Run(ctx context.Context, jobs []Job) *Batch {
	start := time.Now()

	indexed := make([]indexedJob, len(jobs))
	for i, j := range jobs {
		indexed[i] = indexedJob{index: i, job: j}
	}
	mapper := iter.Mapper[indexedJob, *Result]{MaxGoroutines: r.workers}
	results := mapper.Map(indexed, func(ij *indexedJob) *Result {
		return r.process(ctx, ij.index, ij.job)
	})

	return &Batch{Results: results, TotalDuration: time.Since(start)}
}

// Stream decodes jobs as they arrive and calls emit for every result in
// arrival order. It returns when jobs is closed or ctx is done and every
// started job has been emitted.
func (r *Runner) Stream(ctx context.Context, jobs <-chan Job, emit func(*Result)) {
	s := stream.New().WithMaxGoroutines(r.workers)
	index := 0
	defer s.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			i := index
			index++
			s.Go(func() stream.Callback {
				res := r.process(ctx, i, job)
				return func() { emit(res) }
			})
		}
	}
}

type indexedJob struct {
	index int
	job   Job
}

func (r *Runner) process(ctx context.Context, index int, job Job) *Result {
	res := &Result{ID: job.ID, Index: index}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	rec, report, err := r.work(job.Data)
	res.Duration = time.Since(start)
	res.Record, res.Issues, res.Err = rec, report, err

	switch {
	case rec != nil:
		res.ResourceType = rec.Type()
	case report != nil && report.ResourceType != "":
		res.ResourceType = report.ResourceType
	default:
		if rt, peekErr := codec.PeekResourceType(job.Data); peekErr == nil {
			res.ResourceType = rt
		}
	}
	if err != nil {
		r.logger.Debug().Str("job", res.ID).Int("index", index).Err(err).Msg("document failed")
	}
	return res
}
