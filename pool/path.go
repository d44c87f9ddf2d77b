// Package pool provides pooled buffers for building element paths and
// encoded output without per-call allocations.
package pool

import (
	"strconv"
	"sync"
)

// PathBuilder builds element paths such as "Patient.contact[2].gender".
type PathBuilder struct {
	buf []byte
}

var pathBuilderPool = sync.Pool{
	New: func() any {
		return &PathBuilder{buf: make([]byte, 0, 128)}
	},
}

// AcquirePathBuilder gets a cleared PathBuilder from the pool.
// Call Release when done.
func AcquirePathBuilder() *PathBuilder {
	pb := pathBuilderPool.Get().(*PathBuilder)
	pb.buf = pb.buf[:0]
	return pb
}

// Release returns the builder to the pool. Oversized buffers are dropped.
func (b *PathBuilder) Release() {
	if b == nil || cap(b.buf) > 4096 {
		return
	}
	pathBuilderPool.Put(b)
}

// Len returns the current length of the path.
func (b *PathBuilder) Len() int { return len(b.buf) }

// Truncate cuts the path back to n bytes, undoing later appends.
func (b *PathBuilder) Truncate(n int) {
	if n >= 0 && n <= len(b.buf) {
		b.buf = b.buf[:n]
	}
}

// Element appends ".name", or just name on an empty path.
func (b *PathBuilder) Element(name string) {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, name...)
}

// Index appends "[i]".
func (b *PathBuilder) Index(i int) {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(i), 10)
	b.buf = append(b.buf, ']')
}

// Choice appends ".group[x]".
func (b *PathBuilder) Choice(group string) {
	b.Element(group)
	b.buf = append(b.buf, "[x]"...)
}

// String returns the built path.
func (b *PathBuilder) String() string {
	return string(b.buf)
}

// Field joins a parent path and an element name.
func Field(parent, name string) string {
	if parent == "" {
		return name
	}
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, parent...)
	pb.Element(name)
	return pb.String()
}

// Index appends an array index to a path.
func Index(base string, i int) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, base...)
	pb.Index(i)
	return pb.String()
}

// Choice formats the path of a choice group, e.g. "Patient.deceased[x]".
func Choice(parent, group string) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.buf = append(pb.buf, parent...)
	pb.Choice(group)
	return pb.String()
}
