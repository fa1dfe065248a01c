package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"vehicle-telematics/processing/internal/config"
)

func TestValidate(t *testing.T) {
	cfg := &config.Config{
		ValidAPIKeys:        []string{"ops-key-1", "ops-key-2", ""},
		AuthCacheTTLSeconds: 300,
	}
	a := NewAuthenticator(cfg, nil)

	t.Run("static keys pass", func(t *testing.T) {
		assert.True(t, a.Validate(context.Background(), "ops-key-1"))
		assert.True(t, a.Validate(context.Background(), "ops-key-2"))
	})

	t.Run("empty key never passes", func(t *testing.T) {
		assert.False(t, a.Validate(context.Background(), ""))
	})

	t.Run("unknown key without redis fails", func(t *testing.T) {
		assert.False(t, a.Validate(context.Background(), "stranger"))
	})
}
