package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePort(t *testing.T) {
	port, err := parsePort("5555")
	assert.NoError(t, err)
	assert.Equal(t, 5555, port)

	for _, bad := range []string{"0", "65536", "-1", "http", ""} {
		_, err := parsePort(bad)
		assert.Error(t, err, bad)
	}
}

func TestRootCmdRequiresPort(t *testing.T) {
	for _, args := range [][]string{{}, {"5555", "extra"}, {"notaport"}} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		assert.Error(t, cmd.Execute(), args)
	}
}
