package deck

import "errors"

var (
	ErrInvalidOrder       = errors.New("deck: invalid order")
	ErrOutOfRange         = errors.New("deck: card index out of range")
	ErrSameCard           = errors.New("deck: same card")
	ErrIntegrityViolation = errors.New("deck: integrity violation")
)
