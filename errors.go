package pdp

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration-time failures. These are the only
// errors surfaced to callers as blocking; evaluation-time faults are
// converted into deny votes instead.
var (
	ErrRoleExists       = errors.New("role already exists")
	ErrRoleNotFound     = errors.New("role not found")
	ErrRoleProtected    = errors.New("role is system-protected")
	ErrInheritanceCycle = errors.New("role inheritance would form a cycle")
	ErrInvalidPolicy    = errors.New("invalid policy")
	ErrNoPrincipal      = errors.New("principal is required")
)

// ConfigError wraps a rejected administrative mutation with the
// operation and offending input. It unwraps to the matching sentinel
// where one exists.
type ConfigError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }
