package models

// ValidationError is returned for invalid entity input.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string {
	return e.msg
}

var (
	ErrNegativeAmount  = ValidationError{"amount cannot be negative"}
	ErrEmptyItemName   = ValidationError{"item name cannot be empty"}
	ErrInvalidQuantity = ValidationError{"quantity cannot be negative"}
)

// NotFoundError is returned when a record does not exist locally.
type NotFoundError struct {
	msg string
}

func (e NotFoundError) Error() string {
	return e.msg
}

var (
	ErrReceiptNotFound  = NotFoundError{"receipt not found"}
	ErrItemNotFound     = NotFoundError{"item not found"}
	ErrSettingsNotFound = NotFoundError{"settings not found"}
)
