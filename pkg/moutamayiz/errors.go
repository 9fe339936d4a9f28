package moutamayiz

import "errors"

var (
	// ErrUnauthenticated indicates that profile resolution failed and the
	// session must be treated as signed out.
	ErrUnauthenticated = errors.New("moutamayiz: unauthenticated")
	// ErrAlreadySubscribed indicates a dispatcher start while its channel
	// subscriptions are still live.
	ErrAlreadySubscribed = errors.New("moutamayiz: already subscribed")
	// ErrSubscriptionClosed indicates delivery on a released subscription.
	ErrSubscriptionClosed = errors.New("moutamayiz: subscription closed")
	// ErrInvalidQuery indicates a row query that fails validation before
	// reaching the backend.
	ErrInvalidQuery = errors.New("moutamayiz: invalid query")
)
