package sherror

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

const (
	SH_UNEXPECTED           = "SHU"
	SH_CONFIGURATION        = "SHC"
	SH_ROUTING_AMBIGUITY    = "SHA"
	SH_REWRITE_INTERNAL     = "SHR"
	SH_EXECUTION_FAILURE    = "SHE"
	SH_MERGE_SEMANTIC       = "SHM"
	SH_MISSING_SHARDING_KEY = "SHK"
	SH_COMPLEX_QUERY        = "SHX"
)

var existingErrorCodeMap = map[string]string{
	SH_CONFIGURATION:        "ConfigurationError",
	SH_ROUTING_AMBIGUITY:    "RoutingAmbiguityError",
	SH_REWRITE_INTERNAL:     "RewriteInternalError",
	SH_EXECUTION_FAILURE:    "ExecutionFailure",
	SH_MERGE_SEMANTIC:       "MergeSemanticError",
	SH_MISSING_SHARDING_KEY: "ShardingKeyMissing",
	SH_COMPLEX_QUERY:        "ComplexQueryUnsupported",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

// TargetError is the failure of a single physical target.
type TargetError struct {
	DataSource string
	Err        error
}

func (te TargetError) Error() string {
	return fmt.Sprintf("%s: %v", te.DataSource, te.Err)
}

var _ error = &ShardError{}

type ShardError struct {
	Err error

	ErrorCode string

	/* set for execution failures only */
	Targets []TargetError
}

func New(errorCode string, format string, args ...any) *ShardError {
	return &ShardError{
		Err:       fmt.Errorf(format, args...),
		ErrorCode: errorCode,
	}
}

func Wrap(errorCode string, err error) *ShardError {
	return &ShardError{
		Err:       err,
		ErrorCode: errorCode,
	}
}

// NewExecutionFailure aggregates per-target failures into one statement-level error.
func NewExecutionFailure(targets []TargetError) *ShardError {
	var combined error
	for _, te := range targets {
		combined = multierr.Append(combined, te)
	}
	if combined == nil {
		combined = errors.New("execution failed")
	}
	return &ShardError{
		Err:       combined,
		ErrorCode: SH_EXECUTION_FAILURE,
		Targets:   targets,
	}
}

func (er *ShardError) Error() string {
	return fmt.Sprintf("Code: %s. Name: %s. Description: %s.",
		er.ErrorCode, GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *ShardError) Unwrap() error {
	return er.Err
}

// Is reports whether any error in err's chain is a ShardError with the given code.
func Is(err error, errorCode string) bool {
	var se *ShardError
	if errors.As(err, &se) {
		return se.ErrorCode == errorCode
	}
	return false
}
