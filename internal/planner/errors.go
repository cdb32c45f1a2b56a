package planner

import "errors"

var (
	// ErrDayNotFound is returned for operations on a day the plan does not have
	ErrDayNotFound = errors.New("itinerary day not found")
	// ErrActivityNotInDay is returned when removing an activity the day does not contain
	ErrActivityNotInDay = errors.New("activity not in itinerary day")
	// ErrIndexOutOfRange is returned by ReorderInDay for positions outside the day
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvalidStatus is returned by SetStatus for values other than none, want and done
	ErrInvalidStatus = errors.New("invalid activity status")
)

// IsNotFound reports whether err refers to a missing day or activity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDayNotFound) || errors.Is(err, ErrActivityNotInDay)
}

// IsValidation reports whether err is caused by malformed input
func IsValidation(err error) bool {
	return errors.Is(err, ErrIndexOutOfRange) || errors.Is(err, ErrInvalidStatus)
}
