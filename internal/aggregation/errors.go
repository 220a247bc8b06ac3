package aggregation

import "fmt"

// MalformedLocationError is returned when a reading's location literal cannot
// be parsed into a latitude/longitude pair. It aborts the whole fold.
type MalformedLocationError struct {
	DeviceID string
	Raw      string
	Err      error
}

func (e *MalformedLocationError) Error() string {
	return fmt.Sprintf("malformed location %q for device %s: %v", e.Raw, e.DeviceID, e.Err)
}

func (e *MalformedLocationError) Unwrap() error {
	return e.Err
}

// MalformedTimestampError is returned when a reading's time column is not an
// integer epoch
type MalformedTimestampError struct {
	DeviceID string
	Raw      string
	Err      error
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp %q for device %s: %v", e.Raw, e.DeviceID, e.Err)
}

func (e *MalformedTimestampError) Unwrap() error {
	return e.Err
}
