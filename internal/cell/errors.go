package cell

// ErrInvalidSizing is returned for sizings the model cannot evaluate:
// non-positive or non-finite dimensions, or a violated topology constraint.
// Use errors.Is(err, ErrInvalidSizing) to check for it.
var ErrInvalidSizing = &SizingError{}

// SizingError reports which sizing was rejected and why.
type SizingError struct {
	Sizing Sizing
	Reason string
}

func (e *SizingError) Error() string {
	if e.Reason == "" {
		return "invalid sizing"
	}
	return "invalid sizing " + e.Sizing.String() + ": " + e.Reason
}

func (e *SizingError) Is(target error) bool {
	_, ok := target.(*SizingError)
	return ok
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
