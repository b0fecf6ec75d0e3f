package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails. It carries the
// status lines so the failure can be read without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Lines    []string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Lines) > 0 {
		fmt.Fprintf(&buf, "\nStatus lines:\n")
		for i, line := range e.Lines {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// lastLine decodes the final status line. No lines decodes as empty.
func lastLine(lines []string) ([]map[string]any, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	var blocks []map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &blocks); err != nil {
		return nil, fmt.Errorf("decode last status line: %w", err)
	}
	return blocks, nil
}

// blockKey renders name or name[instance].
func blockKey(name, instance string) string {
	if instance == "" {
		return name
	}
	return name + "[" + instance + "]"
}

func assertLineCount(lines []string, a Assertion) error {
	if len(lines) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLineCount,
		Expected: fmt.Sprintf("%d status lines", a.Count),
		Actual:   fmt.Sprintf("%d status lines", len(lines)),
		Lines:    lines,
	}
}

func assertLastLine(lines []string, a Assertion) error {
	blocks, err := lastLine(lines)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(blocks))
	for _, b := range blocks {
		name, _ := b["name"].(string)
		instance, _ := b["instance"].(string)
		keys = append(keys, blockKey(name, instance))
	}
	if reflect.DeepEqual(keys, append([]string{}, a.Blocks...)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLastLine,
		Expected: fmt.Sprintf("%v", a.Blocks),
		Actual:   fmt.Sprintf("%v", keys),
		Lines:    lines,
	}
}

func assertBlockFields(lines []string, a Assertion) error {
	blocks, err := lastLine(lines)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		name, _ := b["name"].(string)
		instance, _ := b["instance"].(string)
		if name != a.Block || instance != a.Instance {
			continue
		}
		if matchFields(b, a.Expect) {
			return nil
		}
		return &AssertionError{
			Type:     AssertBlockFields,
			Expected: fmt.Sprintf("%s with %v", blockKey(a.Block, a.Instance), a.Expect),
			Actual:   fmt.Sprintf("%v", b),
			Lines:    lines,
		}
	}
	return &AssertionError{
		Type:     AssertBlockFields,
		Expected: fmt.Sprintf("%s with %v", blockKey(a.Block, a.Instance), a.Expect),
		Actual:   "block not in last status line",
		Lines:    lines,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s called %d times", a.Op, a.Count),
		Actual:   fmt.Sprintf("%s called %d times", a.Op, count),
	}
}

// assertTraceOrder checks that the first occurrence of each op comes in
// the listed order. Other calls may sit in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1
		}
	}
	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
			}
		}
	}
	return nil
}

// matchFields is a subset match. Numbers compare by value, since YAML
// decodes integers and JSON decodes float64.
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return a == e
		}
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLineCount:
			err = assertLineCount(result.Lines, a)
		case AssertLastLine:
			err = assertLastLine(result.Lines, a)
		case AssertBlockFields:
			err = assertBlockFields(result.Lines, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
