package pdp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
)

// Operator is the fixed comparison set of the condition evaluator.
type Operator string

const (
	OpEquals         Operator = "eq"
	OpNotEquals      Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpRegex          Operator = "regex"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
)

var operators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpGreaterThan: {}, OpGreaterOrEqual: {},
	OpLessThan: {}, OpLessOrEqual: {}, OpIn: {}, OpNotIn: {}, OpContains: {},
	OpStartsWith: {}, OpEndsWith: {}, OpRegex: {}, OpExists: {}, OpNotExists: {},
}

// Condition is one typed predicate over a dotted attribute path. It is
// a pure, stateless function of a Context.
type Condition struct {
	Path     string   `json:"path" yaml:"path"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Validate rejects malformed conditions at configuration time so the
// evaluation path never sees them.
func (c Condition) Validate() error {
	if c.Path == "" {
		return &ConfigError{Op: "validate condition", Detail: "empty path"}
	}
	if _, ok := operators[c.Operator]; !ok {
		return &ConfigError{Op: "validate condition", Detail: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
	switch c.Operator {
	case OpRegex:
		s, ok := c.Value.(string)
		if !ok {
			return &ConfigError{Op: "validate condition", Detail: "regex operator requires a string value"}
		}
		if _, err := regexp.Compile(s); err != nil {
			return &ConfigError{Op: "validate condition", Detail: s, Err: err}
		}
	case OpIn, OpNotIn:
		if toSlice(c.Value) == nil {
			return &ConfigError{Op: "validate condition", Detail: "membership operator requires a list value"}
		}
	}
	return nil
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Path, c.Operator, c.Value)
}

// Evaluate resolves the path inside ctx and applies the operator. A
// missing path satisfies only the existence operators; every other
// operator evaluates false against an absent value.
func (c Condition) Evaluate(ctx *Context) bool {
	val, present := Lookup(ctx, c.Path)
	switch c.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equal(val, c.Value)
	case OpNotEquals:
		return !equal(val, c.Value)
	case OpGreaterThan:
		r, ok := compare(val, c.Value)
		return ok && r > 0
	case OpGreaterOrEqual:
		r, ok := compare(val, c.Value)
		return ok && r >= 0
	case OpLessThan:
		r, ok := compare(val, c.Value)
		return ok && r < 0
	case OpLessOrEqual:
		r, ok := compare(val, c.Value)
		return ok && r <= 0
	case OpIn:
		return member(val, c.Value)
	case OpNotIn:
		return !member(val, c.Value)
	case OpContains:
		return contains(val, c.Value)
	case OpStartsWith:
		a, okA := asString(val)
		b, okB := asString(c.Value)
		return okA && okB && strings.HasPrefix(a, b)
	case OpEndsWith:
		a, okA := asString(val)
		b, okB := asString(c.Value)
		return okA && okB && strings.HasSuffix(a, b)
	case OpRegex:
		a, okA := asString(val)
		pat, okB := c.Value.(string)
		if !okA || !okB {
			return false
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return false
		}
		return re.MatchString(a)
	}
	return false
}

// Lookup resolves a dotted path against a Context. Roots: principal.*,
// resource, action, timestamp, environment.* (env.* accepted). The
// second return is false when the path does not resolve; a present nil
// still counts as present.
func Lookup(ctx *Context, path string) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	root, rest, _ := strings.Cut(path, ".")
	switch root {
	case "principal":
		return lookupPrincipal(ctx.Principal, rest)
	case "resource":
		if rest != "" {
			return nil, false
		}
		return ctx.Resource, true
	case "action":
		if rest != "" {
			return nil, false
		}
		return ctx.Action, true
	case "timestamp":
		if rest != "" {
			return nil, false
		}
		return ctx.Timestamp, true
	case "environment", "env":
		if rest == "" {
			return ctx.Environment, ctx.Environment != nil
		}
		return lookupMap(ctx.Environment, rest)
	}
	return nil, false
}

func lookupPrincipal(p *Principal, path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	field, rest, _ := strings.Cut(path, ".")
	switch field {
	case "id":
		return p.ID, true
	case "kind":
		return string(p.Kind), true
	case "roles":
		return p.Roles, true
	case "permissions":
		return p.Permissions, true
	case "provider":
		return p.Provider, true
	case "session_id":
		return p.SessionID, true
	case "attrs":
		if rest == "" {
			return p.Attrs, p.Attrs != nil
		}
		return lookupMap(p.Attrs, rest)
	}
	return nil, false
}

// lookupMap walks nested map[string]any values along a dotted path.
func lookupMap(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	key, rest, more := strings.Cut(path, ".")
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	if !more {
		return v, true
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupMap(child, rest)
}

// equal compares two values for equality, normalizing numeric types.
func equal(a, b any) bool {
	if fa, okA := asFloat(a); okA {
		if fb, okB := asFloat(b); okB {
			return fa == fb
		}
	}
	if ba, okA := a.(bool); okA {
		if bb, okB := b.(bool); okB {
			return ba == bb
		}
	}
	sa, okA := asString(a)
	sb, okB := asString(b)
	if okA && okB {
		return sa == sb
	}
	return false
}

// compare orders two values: numerics numerically, strings first as
// numbers, then as timestamps (flexible formats via the date package),
// then lexicographically. The second return is false when the values
// are not comparable.
func compare(a, b any) (int, bool) {
	if fa, okA := asFloat(a); okA {
		if fb, okB := asFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ta, okA := asTime(a); okA {
		if tb, okB := asTime(b); okB {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	sa, okA := asString(a)
	sb, okB := asString(b)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// member reports whether val occurs in the list-typed set.
func member(val, set any) bool {
	for _, item := range toSlice(set) {
		if equal(val, item) {
			return true
		}
	}
	return false
}

// contains covers both substring containment on strings and element
// containment when the context value is a list (e.g. principal.roles).
func contains(val, needle any) bool {
	if items := toSlice(val); items != nil {
		for _, item := range items {
			if equal(item, needle) {
				return true
			}
		}
		return false
	}
	a, okA := asString(val)
	b, okB := asString(needle)
	return okA && okB && strings.Contains(a, b)
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := date.Parse(t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}
