package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplane/shoplane/pkg/config"
)

type storeConfig struct {
	Name    string `env:"TEST_STORE_NAME" envDefault:"main"`
	Workers int    `env:"TEST_STORE_WORKERS" envDefault:"4"`
}

type requiredConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply when env is unset", func(t *testing.T) {
		var cfg storeConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "main", cfg.Name)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("second load returns the cached value", func(t *testing.T) {
		var first storeConfig
		require.NoError(t, config.Load(&first))

		// Env changes after the first parse are not observed.
		t.Setenv("TEST_STORE_NAME", "replica")
		var second storeConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first.Name, second.Name)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer rejected", func(t *testing.T) {
		err := config.Load[storeConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}
