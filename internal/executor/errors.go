package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReadOnly is returned for mutations while the proxy runs read-only.
var ErrReadOnly = errors.New("changes are disabled on this assistant")

// FieldNotFoundError means a requested grouping field is not in the schema.
type FieldNotFoundError struct {
	ObjectType   string
	Field        string
	Alternatives []string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found on %s", e.Field, e.ObjectType)
}

// RecordNotFoundError means a code or name lookup matched nothing.
type RecordNotFoundError struct {
	ObjectType string
	Name       string
}

func (e *RecordNotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("no %s record was named", e.ObjectType)
	}
	return fmt.Sprintf("no %s record matches %q", e.ObjectType, e.Name)
}

// DrillDownAmbiguousError means a follow-up named none of the chart labels.
type DrillDownAmbiguousError struct {
	Value  string
	Labels []string
}

func (e *DrillDownAmbiguousError) Error() string {
	return fmt.Sprintf("%q matches none of: %s", e.Value, strings.Join(e.Labels, ", "))
}
