package repository

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)
