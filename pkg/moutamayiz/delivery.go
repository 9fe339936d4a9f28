package moutamayiz

import "context"

// Presenter is the user-facing delivery surface this core drives. Concrete
// implementations (service-worker notifications, toast stack, audio cues)
// live with the UI collaborators.
type Presenter interface {
	// SystemNotify delivers a system-level notification. Implementations
	// own permission gating; delivery failure is tolerated silently.
	SystemNotify(ctx context.Context, title, body string) error
	// Toast shows an in-app transient toast.
	Toast(ctx context.Context, title string) error
	// Chime plays the notification sound cue.
	Chime(ctx context.Context)
}

// VisibilityFunc reports whether the application surface is currently hidden
// from the user. It gates the choice between system notifications and
// in-app toasts; it carries no state of its own.
type VisibilityFunc func() bool
