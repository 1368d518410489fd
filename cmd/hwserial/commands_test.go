package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnescape(t *testing.T) {
	require.Equal(t, "\r\n", unescape(`\r\n`))
	require.Equal(t, "\n", unescape(`\n`))
	require.Equal(t, ";", unescape(";"))
	require.Equal(t, `\q`, unescape(`\q`))
}
