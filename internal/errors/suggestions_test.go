package errors

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStartErrorPortInUse(t *testing.T) {
	err := NewNetworkError(ErrCodePortInUse, "cannot listen on 127.0.0.1:4000", errors.New("address already in use"))

	suggestions := ServerStartError(err, 4000)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "lsof -i :4000", suggestions[0].Command)
	assert.Equal(t, "livemarkdown serve -p 4001", suggestions[1].Command)

	assert.Equal(t, "livemarkdown serve -p 4000", ServerStartError(err, 65535)[1].Command)
}

func TestServerStartErrorPrivilegedPort(t *testing.T) {
	err := NewNetworkError(ErrCodePortInUse, "cannot listen", fmt.Errorf("bind: %w", os.ErrPermission))

	suggestions := ServerStartError(err, 80)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Use unprivileged port", suggestions[0].Title)
}

func TestServerStartErrorUnrelated(t *testing.T) {
	assert.Empty(t, ServerStartError(errors.New("boom"), 4000))
}

func TestConfigurationError(t *testing.T) {
	suggestions := ConfigurationError("[ERR_CONFIG_INVALID] cannot decode configuration", ".livemarkdown.yml")
	require.Len(t, suggestions, 3)
	assert.Equal(t, "cat .livemarkdown.yml", suggestions[1].Command)

	assert.Len(t, ConfigurationError("invalid configuration", ""), 1)
}

func TestEnhancedError(t *testing.T) {
	cause := NewNetworkError(ErrCodePortInUse, "in use", nil)
	err := NewEnhancedError("Failed to start server on port 4000", cause, ServerStartError(cause, 4000))

	assert.Contains(t, err.Error(), "Failed to start server on port 4000: [ERR_PORT_IN_USE] in use")
	assert.Contains(t, err.Error(), "Suggestions:")
	assert.Contains(t, err.Error(), "     Run: lsof -i :4000")
	assert.Equal(t, ExitCodePortInUse, ExitCode(err))
	assert.True(t, errors.Is(err, cause))
}

func TestFormatSuggestionsWithoutSuggestions(t *testing.T) {
	assert.Equal(t, "title", FormatSuggestions("title", nil))
}
