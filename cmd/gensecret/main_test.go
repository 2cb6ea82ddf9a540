package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		var out bytes.Buffer

		err := run(nil, &out)

		require.NoError(t, err)
		key, err := hex.DecodeString(strings.TrimSpace(out.String()))
		require.NoError(t, err, "key must be hex encoded")
		require.Len(t, key, 32)
	})

	t.Run("custom length", func(t *testing.T) {
		var out bytes.Buffer

		err := run([]string{"-n", "64"}, &out)

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 128)
	})

	t.Run("keys differ", func(t *testing.T) {
		var first, second bytes.Buffer

		require.NoError(t, run(nil, &first))
		require.NoError(t, run(nil, &second))

		require.NotEqual(t, first.String(), second.String())
	})

	t.Run("too short", func(t *testing.T) {
		var out bytes.Buffer

		err := run([]string{"--bytes", "8"}, &out)

		require.Error(t, err)
		require.Empty(t, out.String())
	})
}
