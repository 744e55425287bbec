package xslt

import "fmt"

// Stages at which a transform can fail.
const (
	StageDocument   = "document"
	StageStylesheet = "stylesheet"
	StageParams     = "params"
	StageTransform  = "transform"
)

// TransformError reports a failed XSL step together with the stage it failed at.
type TransformError struct {
	Stage string
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("xsl transform failed at %s: %v", e.Stage, e.Cause)
}

func (e *TransformError) Unwrap() error {
	return e.Cause
}
