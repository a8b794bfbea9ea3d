package foundry

import (
	"log"
	"os"
	"time"
)

const (
	// EnvGuardchatMode is the environment variable name for mode selection.
	EnvGuardchatMode = "GUARDCHAT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewPlatform creates a platform client based on the GUARDCHAT_MODE
// environment variable. If GUARDCHAT_MODE=MOCK, returns a MockClient;
// otherwise returns a real Client.
func NewPlatform(baseURL, apiKey string, timeout time.Duration) Platform {
	if os.Getenv(EnvGuardchatMode) == ModeMock {
		log.Println("GUARDCHAT_MODE=MOCK detected, using mock platform client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
