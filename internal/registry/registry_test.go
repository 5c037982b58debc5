package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultSemantics(t *testing.T) {
	t.Run("Success_FirstRegisteredIsDefault", func(t *testing.T) {
		r := New[string]("strategy")
		r.Register("A", "first")
		r.Register("B", "second")

		got, err := r.Default()
		require.NoError(t, err)
		assert.Equal(t, "first", got)
		assert.Equal(t, "A", r.DefaultName())
	})

	t.Run("Success_SetDefault", func(t *testing.T) {
		r := New[string]("strategy")
		r.Register("A", "first")
		r.Register("B", "second")

		require.NoError(t, r.SetDefault("B"))

		got, err := r.Default()
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("Success_ReRegisterKeepsDefault", func(t *testing.T) {
		r := New[string]("strategy")
		r.Register("A", "first")
		r.Register("B", "second")
		r.Register("B", "replaced")
		r.Register("A", "replaced-a")

		got, err := r.Default()
		require.NoError(t, err)
		assert.Equal(t, "replaced-a", got)

		b, err := r.Get("B")
		require.NoError(t, err)
		assert.Equal(t, "replaced", b)
		assert.Equal(t, []string{"A", "B"}, r.All())
	})

	t.Run("Error_DefaultOnEmptyRegistry", func(t *testing.T) {
		r := New[int]("audit driver")

		_, err := r.Default()
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestRegistry_NotRegistered(t *testing.T) {
	kinds := []string{"revocation strategy", "rotation strategy", "audit driver", "secret generator", "hasher", "token type"}

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			r := New[int](kind)
			r.Register("known", 1)

			_, err := r.Get("unregistered")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotRegistered))

			var notRegistered *NotRegisteredError
			require.True(t, errors.As(err, &notRegistered))
			assert.Equal(t, kind, notRegistered.Kind)
			assert.Equal(t, "unregistered", notRegistered.Name)

			err = r.SetDefault("unregistered")
			assert.ErrorIs(t, err, ErrNotRegistered)
			assert.Equal(t, "known", r.DefaultName())
		})
	}
}

func TestRegistry_HasAndResolve(t *testing.T) {
	r := New[string]("hasher")
	assert.False(t, r.Has("sha256"))

	r.Register("sha256", "s256")
	r.Register("sha512", "s512")
	assert.True(t, r.Has("sha256"))

	got, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "s256", got)

	got, err = r.Resolve("sha512")
	require.NoError(t, err)
	assert.Equal(t, "s512", got)

	_, err = r.Resolve("md5")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := New[int]("generator")
	r.Register("a", 1)
	r.Register("b", 2)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Get("b")
			assert.NoError(t, err)
			assert.Equal(t, 2, v)
			assert.Len(t, r.All(), 2)
		}()
	}
	wg.Wait()
}
