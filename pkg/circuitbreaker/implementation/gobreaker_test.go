package implementation

import (
	"errors"
	"testing"
	"time"

	"github.com/jt828/go-autometric/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func TestGobreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		var transitions []string
		cb := NewCircuitBreaker[int](circuitbreaker.Settings{
			Name:             "test",
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				transitions = append(transitions, from.String()+"->"+to.String())
			},
		})

		for i := 0; i < 2; i++ {
			_, err := cb.Execute(func() (int, error) { return 0, errDown })
			assert.ErrorIs(t, err, errDown)
		}
		assert.Equal(t, circuitbreaker.Open, cb.State())
		assert.Equal(t, []string{"closed->open"}, transitions)

		called := false
		_, err := cb.Execute(func() (int, error) { called = true; return 1, nil })
		assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
		assert.False(t, called)
	})

	t.Run("successful errors keep it closed", func(t *testing.T) {
		cb := NewCircuitBreaker[int](circuitbreaker.Settings{
			FailureThreshold: 1,
			IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, errDown) },
		})

		_, err := cb.Execute(func() (int, error) { return 0, errDown })
		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, circuitbreaker.Closed, cb.State())
	})

	t.Run("returns the value", func(t *testing.T) {
		cb := NewCircuitBreaker[string](circuitbreaker.Settings{})
		v, err := cb.Execute(func() (string, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}
