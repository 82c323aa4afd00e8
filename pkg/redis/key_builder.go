package redis

import "fmt"

// Key patterns
const (
	KeyCredentials = "session:%s:store" // session:{namespace}:store hash
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// KeyCredentials returns the hash holding one device's stored session and preferences
func (kb *KeyBuilder) KeyCredentials(namespace string) string {
	return kb.BuildKey(fmt.Sprintf(KeyCredentials, namespace))
}
