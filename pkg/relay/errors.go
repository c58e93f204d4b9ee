package relay

import "errors"

// Sentinel errors for relay setup. Everything after setup arrives as an
// Event on the stream channel.
var (
	// ErrConversationNotFound indicates the conversation does not exist or
	// is not owned by the requesting user
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNoEnabledModel indicates no enabled model configuration is available
	ErrNoEnabledModel = errors.New("no enabled model configuration")

	// ErrModelDisabled indicates the requested model configuration exists but
	// is not enabled
	ErrModelDisabled = errors.New("model configuration is disabled")

	// ErrUpstreamUnavailable indicates the provider stream could not be
	// established within the retry budget
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
)
