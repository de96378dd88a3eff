package compile

// validationError signals bad input that never touched the queue
// (400 mapping).
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// IsValidation reports whether err indicates rejected input.
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// compilerError signals that the external compiler failed or raised.
type compilerError struct{ msg string }

func (e compilerError) Error() string { return e.msg }

// IsCompiler reports whether err came from the external compiler.
func IsCompiler(err error) bool {
	_, ok := err.(compilerError)
	return ok
}

// encodingError signals that a compiled artifact could not be turned
// into the blueprint exchange form.
type encodingError struct{ msg string }

func (e encodingError) Error() string { return e.msg }

// IsEncoding reports whether err indicates a blueprint encoding
// failure.
func IsEncoding(err error) bool {
	_, ok := err.(encodingError)
	return ok
}
