//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// JSONAssertOptions controls how command JSON output is compared.
type JSONAssertOptions struct {
	// IgnoreExtraKeys drops object keys that only the actual document has.
	IgnoreExtraKeys bool `default:"false"`
	// IgnoredFields are removed from both documents at every depth.
	IgnoredFields []string
}

// JSONOption is a functional option for configuring JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter reports a structural diff between two JSON documents.
type JSONAsserter struct {
	t       *testing.T
	options JSONAssertOptions
}

func NewJSONAsserter(t *testing.T) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	ja.t.Helper()
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v\n%s", err, actualJSON)
	}

	// gojsondiff only compares objects at the root
	expected = map[string]any{"root": expected}
	actual = map[string]any{"root": actual}

	for _, field := range ja.options.IgnoredFields {
		dropField(expected, field)
		dropField(actual, field)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	d, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(d)
	return out
}

func dropField(v any, field string) {
	switch node := v.(type) {
	case map[string]any:
		delete(node, field)
		for _, child := range node {
			dropField(child, field)
		}
	case []any:
		for _, child := range node {
			dropField(child, field)
		}
	}
}

// pruneExtraKeys removes keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			if _, ok := exp[k]; !ok {
				delete(act, k)
			}
		}
		for k := range exp {
			pruneExtraKeys(act[k], exp[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}

func WithIgnoredFields(fields ...string) JSONOption {
	return func(opts *JSONAssertOptions) { opts.IgnoredFields = fields }
}

// TextAssertOptions controls how command text output is compared.
type TextAssertOptions struct {
	IgnoreTrailingWhitespace bool `default:"false"`
	IgnoreEmptyLines         bool `default:"false"`
}

// TextOption is a functional option for configuring TextAsserter
type TextOption func(*TextAssertOptions)

// TextAsserter reports a unified diff between two texts.
type TextAsserter struct {
	t       *testing.T
	options TextAssertOptions
}

func NewTextAsserter(t *testing.T) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// Assert compares actual text against expected text.
func (ta *TextAsserter) Assert(actual, expected string) {
	ta.t.Helper()
	a, e := ta.normalize(actual), ta.normalize(expected)
	if a == e {
		return
	}
	edits := myers.ComputeEdits("", e, a)
	ta.t.Errorf("Text assertion failed - unified diff:\n%s",
		fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits)))
}

func (ta *TextAsserter) normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		if ta.options.IgnoreEmptyLines && line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreTrailingWhitespace = ignore }
}

func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreEmptyLines = ignore }
}
