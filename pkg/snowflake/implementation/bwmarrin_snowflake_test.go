package implementation

import (
	"testing"

	"github.com/jt828/go-autometric/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake(t *testing.T) {
	t.Run("ids are unique and increasing", func(t *testing.T) {
		sf, err := NewSnowflake(7)
		require.NoError(t, err)

		prev := sf.Generate()
		for i := 0; i < 100; i++ {
			next := sf.Generate()
			assert.Greater(t, next, prev)
			prev = next
		}
		assert.NotEqual(t, sf.GenerateString(), sf.GenerateString())
	})

	t.Run("rejects node ids outside the node field", func(t *testing.T) {
		_, err := NewSnowflake(4096)
		assert.ErrorIs(t, err, apperror.ErrConfiguration)
	})
}
