package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// ErrNotBundle is returned by ReadBundle when the input is not a JSON
// object.
var ErrNotBundle = errors.New("batch: input is not a bundle object")

type bundleEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

// ReadBundle streams the entry resources of a JSON Bundle from r into jobs
// and closes jobs when done. Each job is named after the entry fullUrl, or
// "entry[i]" without one. Entries without a resource, or with a null one,
// are skipped. Members other than entry are skipped without being decoded
// into records.
func ReadBundle(ctx context.Context, r io.Reader, jobs chan<- Job) error {
	defer close(jobs)

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("batch: reading bundle: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotBundle
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("batch: reading bundle: %w", err)
		}
		if name, _ := tok.(string); name == "entry" {
			return readEntries(ctx, dec, jobs)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("batch: skipping %v: %w", tok, err)
		}
	}
	return nil
}

func readEntries(ctx context.Context, dec *json.Decoder, jobs chan<- Job) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("batch: reading entries: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("batch: entry must be an array, got %v", tok)
	}

	for i := 0; dec.More(); i++ {
		var entry bundleEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("batch: entry[%d]: %w", i, err)
		}
		if len(entry.Resource) == 0 || bytes.Equal(entry.Resource, []byte("null")) {
			continue
		}
		job := Job{ID: entry.FullURL, Data: entry.Resource}
		if job.ID == "" {
			job.ID = fmt.Sprintf("entry[%d]", i)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobs <- job:
		}
	}
	return nil
}

// StreamBundle decodes the entries of the Bundle read from rd as they are
// read and emits their results in entry order. It returns the read error,
// if any, after every started entry has been emitted.
func (r *Runner) StreamBundle(ctx context.Context, rd io.Reader, emit func(*Result)) error {
	jobs := make(chan Job)
	errc := make(chan error, 1)
	go func() {
		errc <- ReadBundle(ctx, rd, jobs)
	}()
	r.Stream(ctx, jobs, emit)

	// Stream may stop on ctx before the reader does; drain so it can exit.
	for range jobs {
	}
	return <-errc
}
