package primitive

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/gofhir/fhirschema/issue"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		raw      any
		want     any
		wantID   issue.DiagnosticID
	}{
		{"boolean", "boolean", false, false, ""},
		{"boolean as string", "boolean", "false", nil, issue.DiagTypeWrongJSONType},
		{"integer", "integer", json.Number("42"), int64(42), ""},
		{"negative integer", "integer", json.Number("-7"), int64(-7), ""},
		{"integer fraction", "integer", json.Number("4.5"), nil, issue.DiagTypeInvalidFormat},
		{"integer overflow", "integer", json.Number("3000000000"), nil, issue.DiagTypeOutOfRange},
		{"positiveInt zero", "positiveInt", json.Number("0"), nil, issue.DiagTypeInvalidFormat},
		{"unsignedInt zero", "unsignedInt", json.Number("0"), int64(0), ""},
		{"integer from float", "integer", float64(12), int64(12), ""},
		{"code", "code", "entered-in-error", "entered-in-error", ""},
		{"code with leading space", "code", " male", nil, issue.DiagTypeInvalidFormat},
		{"id", "id", "p1", "p1", ""},
		{"id too long", "id", "0123456789012345678901234567890123456789012345678901234567890123456789", nil, issue.DiagTypeInvalidFormat},
		{"date", "date", "1974-12-25", "1974-12-25", ""},
		{"partial date", "date", "1974-12", "1974-12", ""},
		{"bad date", "date", "1974-13-01", nil, issue.DiagTypeInvalidFormat},
		{"dateTime", "dateTime", "2015-02-07T13:28:17-05:00", "2015-02-07T13:28:17-05:00", ""},
		{"dateTime missing zone", "dateTime", "2015-02-07T13:28:17", nil, issue.DiagTypeInvalidFormat},
		{"instant", "instant", "2015-02-07T13:28:17.239+02:00", "2015-02-07T13:28:17.239+02:00", ""},
		{"time", "time", "09:30:00", "09:30:00", ""},
		{"uri with space", "uri", "http://a b", nil, issue.DiagTypeInvalidFormat},
		{"oid", "oid", "urn:oid:1.2.3.4", "urn:oid:1.2.3.4", ""},
		{"uuid", "uuid", "urn:uuid:c757873d-ec9a-4326-a141-556f43239520", "urn:uuid:c757873d-ec9a-4326-a141-556f43239520", ""},
		{"empty string", "string", "", nil, issue.DiagTypeInvalidFormat},
		{"string as number", "string", json.Number("1"), nil, issue.DiagTypeWrongJSONType},
		{"xhtml", "xhtml", `<div xmlns="http://www.w3.org/1999/xhtml">x</div>`, `<div xmlns="http://www.w3.org/1999/xhtml">x</div>`, ""},
		{"xhtml without div", "xhtml", "<p>x</p>", nil, issue.DiagTypeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.typeName, tt.raw)
			if tt.wantID != "" {
				var perr *Error
				if !errors.As(err, &perr) {
					t.Fatalf("Decode(%s, %v) error = %v; want %s", tt.typeName, tt.raw, err, tt.wantID)
				}
				if perr.ID != tt.wantID {
					t.Errorf("Decode(%s, %v) ID = %s; want %s", tt.typeName, tt.raw, perr.ID, tt.wantID)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%s, %v) unexpected error: %v", tt.typeName, tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%s, %v) = %v (%T); want %v (%T)", tt.typeName, tt.raw, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDecimalPrecisionPreserved(t *testing.T) {
	for _, text := range []string{"1.50", "0.010", "-3.0", "100", "0"} {
		v, err := Decode("decimal", json.Number(text))
		if err != nil {
			t.Fatalf("Decode(decimal, %s): %v", text, err)
		}
		d, ok := v.(decimal.Decimal)
		if !ok {
			t.Fatalf("Decode(decimal, %s) = %T; want decimal.Decimal", text, v)
		}
		if got := FormatDecimal(d); got != text {
			t.Errorf("FormatDecimal(%s) = %s", text, got)
		}
	}
}

func TestParseLexical(t *testing.T) {
	if v, err := Parse("boolean", "true"); err != nil || v != true {
		t.Errorf("Parse(boolean, true) = %v, %v", v, err)
	}
	if _, err := Parse("boolean", "yes"); err == nil {
		t.Error("Parse(boolean, yes) should fail")
	}
	if v, err := Parse("positiveInt", "3"); err != nil || v != int64(3) {
		t.Errorf("Parse(positiveInt, 3) = %v, %v", v, err)
	}
	if v, err := Parse("date", "2020-01-01"); err != nil || v != "2020-01-01" {
		t.Errorf("Parse(date) = %v, %v", v, err)
	}
}

func TestNormalize(t *testing.T) {
	if v, err := Normalize("integer", 5); err != nil || v != int64(5) {
		t.Errorf("Normalize(integer, 5) = %v, %v", v, err)
	}
	if _, err := Normalize("positiveInt", -1); err == nil {
		t.Error("Normalize(positiveInt, -1) should fail")
	}
	if _, err := Normalize("boolean", "true"); err == nil {
		t.Error("Normalize(boolean, string) should fail")
	}
	v, err := Normalize("decimal", 2.5)
	if err != nil {
		t.Fatalf("Normalize(decimal, 2.5): %v", err)
	}
	if got := Format(v); got != "2.5" {
		t.Errorf("Format(decimal 2.5) = %s", got)
	}
	if got := Format(int64(-3)); got != "-3" {
		t.Errorf("Format(int64) = %s", got)
	}
}

func TestNormalizeNonFiniteFloat(t *testing.T) {
	tests := []struct {
		typeName string
		v        float64
	}{
		{"decimal", math.NaN()},
		{"decimal", math.Inf(1)},
		{"decimal", math.Inf(-1)},
		{"integer", math.NaN()},
	}
	for _, tt := range tests {
		_, err := Normalize(tt.typeName, tt.v)
		var pe *Error
		if !errors.As(err, &pe) {
			t.Errorf("Normalize(%s, %v) error = %v; want *Error", tt.typeName, tt.v, err)
			continue
		}
		if pe.ID != issue.DiagTypeOutOfRange {
			t.Errorf("Normalize(%s, %v) ID = %s; want %s", tt.typeName, tt.v, pe.ID, issue.DiagTypeOutOfRange)
		}
	}
}

func TestTruncateValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"short", "abc", "abc"},
		{"ascii", strings.Repeat("a", 60), strings.Repeat("a", 50) + "..."},
		// 49 ASCII bytes followed by a two byte rune straddling the limit.
		{"multibyte boundary", strings.Repeat("a", 49) + "é" + strings.Repeat("b", 10), strings.Repeat("a", 49) + "..."},
		{"all multibyte", strings.Repeat("日", 20), strings.Repeat("日", 16) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateValue(tt.value)
			if got != tt.want {
				t.Errorf("truncateValue() = %q; want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateValue() = %q is not valid UTF-8", got)
			}
		})
	}
}
