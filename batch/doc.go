// Package batch decodes many documents in parallel.
//
// Documents are independent: a failure is reported on its own Result and
// never affects the others. Results always come back in input order.
//
// Example usage:
//
//	c, _ := codec.NewDefault()
//	r := batch.New(c.Decode, 4)
//
//	b := r.Decode(ctx, docs)
//	for _, res := range b.Results {
//	    if res.Err != nil {
//	        // Handle error
//	    }
//	    // Process res.Record
//	}
//
// NewValidating runs a report function such as (*codec.Codec).Validate and
// keeps each document's issues in Result.Issues.
package batch
