package domain

import "errors"

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrDuplicateMessage = errors.New("duplicate message")
	ErrInvalidInput     = errors.New("invalid input")
)
