package services

import "errors"

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotSignedIn   = errors.New("not signed in")
	ErrUserNotFound  = errors.New("user not found")
	ErrMalformedPush = errors.New("malformed push payload")
	ErrEmailTaken    = errors.New("email already registered")
)

// User-visible notices. They are shown once and never retried.
const (
	WarnConversationsUnavailable = "Unable to load conversations"
	WarnTokenUpdateFailed        = "Unable to update token"
	WarnSignOutFailed            = "Unable to sign out"
	WarnProfileImageUnreadable   = "Unable to load profile image"
	WarnProfileImageMissing      = "Profile image not available"
)
