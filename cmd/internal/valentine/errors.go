package valentine

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("valentine not found")
	ErrNotPending   = errors.New("valentine not pending")
	ErrInvalidCode  = errors.New("invalid or expired code")
)
