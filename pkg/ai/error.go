package ai

import (
	"errors"
	"fmt"

	"github.com/googleapis/gax-go/v2/apierror"
)

var (
	// ErrGeneration matches every *GenerationError with errors.Is.
	ErrGeneration = errors.New("ai: generation failed")

	// ErrEmptyPayload is wrapped when the model answered without usable
	// content.
	ErrEmptyPayload = errors.New("ai: empty payload")
)

// GenerationError reports a failed call to the model.
type GenerationError struct {
	// Op is one of "script", "summary", "answer" or "speech".
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("ai: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func genErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	if e, ok := err.(*apierror.APIError); ok {
		err = e.Unwrap()
	}
	return &GenerationError{Op: op, Err: err}
}

var opMessages = map[string]string{
	"script":  "Could not generate the explanation",
	"summary": "Could not summarize the text",
	"answer":  "Could not answer the question",
	"speech":  "Could not synthesize the narration",
}

// Message returns the user-facing text for err. Generation errors keep the
// provider's message after a short prefix naming the failed step.
func Message(err error) string {
	var ge *GenerationError
	if !errors.As(err, &ge) {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	prefix, ok := opMessages[ge.Op]
	if !ok {
		prefix = "The AI service failed"
	}
	if ge.Err == nil || errors.Is(ge.Err, ErrEmptyPayload) {
		return prefix + ": the service returned no content."
	}
	return prefix + ": " + ge.Err.Error()
}
