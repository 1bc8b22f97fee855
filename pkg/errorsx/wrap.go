package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError tags a failure with the reason code logged and counted for
// it. The message is the wrapped error's, so console output reads naturally.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins: a whisper exit that
// travels up through the worker still reports stt_exit.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Errorf builds a new error with fmt.Errorf semantics and tags it.
func Errorf(reason ReasonCode, format string, args ...any) error {
	return ReasonedError{Err: fmt.Errorf(format, args...), Reason: reason}
}

func Reason(err error) ReasonCode {
	var re ReasonedError
	if err == nil || !errors.As(err, &re) {
		return ReasonUnknown
	}
	return re.Reason
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func HasAny(err error, reasons ...ReasonCode) bool {
	got := Reason(err)
	for _, r := range reasons {
		if got == r {
			return true
		}
	}
	return false
}

// Fatal reports whether err must stop the assistant before the first prompt
// instead of being reported in-band: a broken config or an unreadable
// conversation history.
func Fatal(err error) bool {
	return HasAny(err, ReasonConfigMissing, ReasonConfigInvalid, ReasonTranscriptLoad)
}
