package pdp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseCondition turns a compact textual predicate into a Condition.
// The grammar intentionally covers only the fixed operator set:
//
//	principal.attrs.dept == "engineering"
//	principal.attrs.level >= 3
//	environment.business_hours == true
//	action in ["read", "list"]
//	principal.roles contains "auditor"
//	principal.attrs.mfa exists
//
// Parsing is deterministic; anything outside the grammar is rejected.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, &ConfigError{Op: "parse condition", Detail: "empty expression"}
	}

	if m := existsRe.FindStringSubmatch(s); m != nil {
		op := OpExists
		if m[2] == "not_exists" {
			op = OpNotExists
		}
		return Condition{Path: m[1], Operator: op}, nil
	}

	if m := listRe.FindStringSubmatch(s); m != nil {
		op := OpIn
		if m[2] == "not_in" {
			op = OpNotIn
		}
		vals, err := parseList(m[3])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Path: m[1], Operator: op, Value: vals}, nil
	}

	if m := binaryRe.FindStringSubmatch(s); m != nil {
		op, ok := symbolOps[m[2]]
		if !ok {
			return Condition{}, &ConfigError{Op: "parse condition", Detail: fmt.Sprintf("unknown operator %q", m[2])}
		}
		val, err := parseScalar(m[3])
		if err != nil {
			return Condition{}, err
		}
		c := Condition{Path: m[1], Operator: op, Value: val}
		if err := c.Validate(); err != nil {
			return Condition{}, err
		}
		return c, nil
	}

	return Condition{}, &ConfigError{Op: "parse condition", Detail: fmt.Sprintf("unsupported syntax: %s", s)}
}

var (
	pathPat  = `([a-zA-Z_][a-zA-Z0-9_.]*)`
	existsRe = regexp.MustCompile(`^` + pathPat + `\s+(exists|not_exists)$`)
	listRe   = regexp.MustCompile(`^` + pathPat + `\s+(in|not_in)\s+\[([^\]]*)\]$`)
	binaryRe = regexp.MustCompile(`^` + pathPat + `\s*(==|!=|>=|<=|>|<|contains|starts_with|ends_with|regex)\s*(.+)$`)
)

var symbolOps = map[string]Operator{
	"==":          OpEquals,
	"!=":          OpNotEquals,
	">":           OpGreaterThan,
	">=":          OpGreaterOrEqual,
	"<":           OpLessThan,
	"<=":          OpLessOrEqual,
	"contains":    OpContains,
	"starts_with": OpStartsWith,
	"ends_with":   OpEndsWith,
	"regex":       OpRegex,
}

// parseScalar interprets a literal: quoted string, bool, or number.
// Bare words fall back to strings so config authors can omit quotes.
func parseScalar(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ConfigError{Op: "parse condition", Detail: "missing value"}
	}
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1], nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

func parseList(inner string) ([]any, error) {
	parts := strings.Split(inner, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := parseScalar(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, &ConfigError{Op: "parse condition", Detail: "empty list"}
	}
	return out, nil
}
