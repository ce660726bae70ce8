package imaging

import "errors"

// ErrDecode matches every DecodeError via errors.Is.
var ErrDecode = errors.New("image decode failed")

// DecodeError reports bytes that do not match a supported or declared format.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return "decode image: " + e.Err.Error()
	}
	return "decode " + string(e.Format) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErr(format Format, err error) error {
	return &DecodeError{Format: format, Err: err}
}
