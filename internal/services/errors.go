package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classify pipeline failures. Configuration and dependency
// errors are raised before any work is scheduled; the remaining markers scope
// a failure to a single asset.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrMissingDependency = errors.New("missing dependency")
	ErrTimeout           = errors.New("resource timeout")
	ErrExternalProcess   = errors.New("external process error")
	ErrCompute           = errors.New("compute error")
	ErrParse             = errors.New("parse error")
	ErrTransient         = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatalBatch reports whether an error must abort the whole batch before any
// asset is scheduled, as opposed to failing a single asset mid-run.
func IsFatalBatch(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrMissingDependency)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
