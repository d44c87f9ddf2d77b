// Package location finds the line and column of an element path in JSON
// source, for attaching positions to issues.
package location

import (
	"errors"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/gofhir/fhirschema/issue"
)

var errStop = errors.New("stop")

// Find returns the position of the value at path, e.g.
// "Patient.contact[2].gender" or "QuestionnaireResponse.item[0].answer[0].value[x]".
// A leading resource type segment is ignored. Choice segments ("value[x]")
// match the first member named valueXxx.
func Find(data []byte, path string) (issue.Location, bool) {
	keys, ok := resolveKeys(data, segments(path))
	if !ok {
		return issue.Location{}, false
	}
	if len(keys) == 0 {
		return Offset(data, firstNonSpace(data)), true
	}

	value, typ, end, err := jsonparser.Get(data, keys...)
	if err != nil {
		return issue.Location{}, false
	}
	start := end - len(value)
	if typ == jsonparser.String {
		start -= 2
	}
	return Offset(data, start), true
}

// Offset converts a byte offset into a 1-based line and column.
func Offset(data []byte, offset int) issue.Location {
	loc := issue.Location{Line: 1, Column: 1}
	for i := 0; i < offset && i < len(data); i++ {
		if data[i] == '\n' {
			loc.Line++
			loc.Column = 1
			continue
		}
		loc.Column++
	}
	return loc
}

// Annotate sets the Location of every issue in res that has an expression
// and no position yet.
func Annotate(data []byte, res *issue.Result) {
	for i := range res.Issues {
		is := &res.Issues[i]
		if is.Location != nil || len(is.Expression) == 0 {
			continue
		}
		if loc, ok := Find(data, is.Expression[0]); ok {
			is.Location = &loc
		}
	}
}

// segments splits a path into jsonparser keys: member names, "[n]" array
// indexes and "name[x]" choice markers.
func segments(path string) []string {
	if head, rest, found := strings.Cut(path, "."); found && isTypeName(head) {
		path = rest
	} else if !found && isTypeName(path) {
		return nil
	}

	var out []string
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		if name, ok := strings.CutSuffix(part, "[x]"); ok {
			out = append(out, name+"[x]")
			continue
		}
		name, idx, _ := strings.Cut(part, "[")
		out = append(out, name)
		for idx != "" {
			var n string
			n, idx, _ = strings.Cut(idx, "]")
			out = append(out, "["+n+"]")
			idx = strings.TrimPrefix(idx, "[")
		}
	}
	return out
}

// resolveKeys replaces choice markers with the member actually present.
func resolveKeys(data []byte, segs []string) ([]string, bool) {
	keys := make([]string, 0, len(segs))
	for _, seg := range segs {
		prefix, ok := strings.CutSuffix(seg, "[x]")
		if !ok {
			keys = append(keys, seg)
			continue
		}
		parent, typ, _, err := jsonparser.Get(data, keys...)
		if err != nil || typ != jsonparser.Object {
			return nil, false
		}
		found := ""
		_ = jsonparser.ObjectEach(parent, func(key, _ []byte, _ jsonparser.ValueType, _ int) error {
			k := string(key)
			if len(k) > len(prefix) && strings.HasPrefix(k, prefix) && isUpper(k[len(prefix)]) {
				found = k
				return errStop
			}
			return nil
		})
		if found == "" {
			return nil, false
		}
		keys = append(keys, found)
	}
	return keys, true
}

func isTypeName(s string) bool {
	return s != "" && isUpper(s[0]) && !strings.Contains(s, "[")
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func firstNonSpace(data []byte) int {
	for i, c := range data {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return i
	}
	return 0
}
