package domain

// Request is one user turn. Immutable after creation.
type Request struct {
	ID        string
	SessionID string
	Message   string

	// Conversation context handles, independent by invariant: the
	// generation handle is never used for moderation or vice versa.
	ModerationHandle string
	GenerationHandle string
}
