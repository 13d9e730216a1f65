package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAML(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		b, err := yaml.Marshal(Duration(30 * time.Second))
		require.NoError(t, err)

		var d Duration
		require.NoError(t, yaml.Unmarshal(b, &d))
		assert.Equal(t, 30*time.Second, d.Std())
	})

	t.Run("bare integer is nanoseconds", func(t *testing.T) {
		var d Duration
		require.NoError(t, yaml.Unmarshal([]byte("500000000"), &d))
		assert.Equal(t, 500*time.Millisecond, d.Std())
	})

	t.Run("rejects non-duration scalar", func(t *testing.T) {
		var d Duration
		require.Error(t, yaml.Unmarshal([]byte("later"), &d))
	})
}
