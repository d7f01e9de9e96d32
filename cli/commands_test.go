package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/core/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Connect(t *testing.T) {
	opts, cmd, err := parseArgs(strings.Fields(
		"-config /tmp/c.yaml -log-level debug connect -country us,ca -country de -category p2p -load 30 -match min -tcp -daemon -max-retries 5 de12"),
		io.Discard)
	require.NoError(t, err)
	assert.Equal(t, globalOptions{configPath: "/tmp/c.yaml", logLevel: "debug"}, opts)

	c, ok := cmd.(*connectCommand)
	require.True(t, ok)
	assert.True(t, c.needsRoot())
	assert.Equal(t, "de12", c.server)
	assert.Equal(t, "tcp", c.protocol)
	assert.True(t, c.daemon)
	require.NotNil(t, c.maxRetries)
	assert.Equal(t, 5, *c.maxRetries)
	assert.Equal(t, []string{"us", "ca", "de"}, c.criteria.Countries)
	assert.Equal(t, []string{"p2p"}, c.criteria.Categories)
	require.NotNil(t, c.criteria.LoadThreshold)
	assert.Equal(t, 30, *c.criteria.LoadThreshold)
	assert.Equal(t, filter.MatchMin, c.criteria.LoadMatch)
}

func TestParseArgs_ConnectDefaults(t *testing.T) {
	_, cmd, err := parseArgs([]string{"connect"}, io.Discard)
	require.NoError(t, err)

	c := cmd.(*connectCommand)
	assert.Empty(t, c.protocol)
	assert.Nil(t, c.maxRetries)
	assert.Nil(t, c.criteria.LoadThreshold)

	req := c.request(config.Default())
	assert.Equal(t, "best", req.Server)
	assert.False(t, req.Bypass())

	_, cmd, err = parseArgs([]string{"connect", "-max-retries", "0", "-server", "us7", "-openvpn", "--verb 4"}, io.Discard)
	require.NoError(t, err)
	c = cmd.(*connectCommand)
	require.NotNil(t, c.maxRetries)
	assert.Zero(t, *c.maxRetries)
	assert.Equal(t, "--verb 4", c.options)
	assert.True(t, c.request(config.Default()).Bypass())
}

func TestParseArgs_List(t *testing.T) {
	_, cmd, err := parseArgs([]string{"list"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "servers", cmd.(*listCommand).topic)
	assert.False(t, cmd.needsRoot())

	_, cmd, err = parseArgs([]string{"list", "servers", "-best", "-name", "us1*"}, io.Discard)
	require.NoError(t, err)
	l := cmd.(*listCommand)
	assert.True(t, l.criteria.Best)
	assert.Equal(t, []string{"us1*"}, l.criteria.Names)

	_, cmd, err = parseArgs([]string{"list", "-top", "3"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 3, cmd.(*listCommand).criteria.TopN)

	_, cmd, err = parseArgs([]string{"list", "countries"}, io.Discard)
	require.NoError(t, err)
	l = cmd.(*listCommand)
	assert.Equal(t, "countries", l.topic)
	assert.Nil(t, l.criteria.LoadThreshold)
}

func TestParseArgs_Kill(t *testing.T) {
	_, cmd, err := parseArgs([]string{"kill"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "kill", cmd.name())
	assert.True(t, cmd.needsRoot())
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		usage bool
	}{
		{name: "No_Command", args: "", usage: true},
		{name: "Unknown_Command", args: "status", usage: true},
		{name: "Both_Protocols", args: "connect -tcp -udp", usage: true},
		{name: "Two_Servers", args: "connect us1 us2", usage: true},
		{name: "Server_Twice", args: "connect -server us1 us2", usage: true},
		{name: "Load_Out_Of_Range", args: "connect -load 101", usage: true},
		{name: "Bad_Match", args: "list -match most", usage: true},
		{name: "Bad_Pattern", args: "list -name [", usage: true},
		{name: "Negative_Top", args: "list -top -1", usage: true},
		{name: "Unknown_Topic", args: "list groups", usage: true},
		{name: "Kill_Arguments", args: "kill now", usage: true},
		{name: "Topic_Filters", args: "list countries -country us"},
		{name: "Unknown_Flag", args: "connect -fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseArgs(strings.Fields(tt.args), io.Discard)
			require.Error(t, err)
			assert.Equal(t, tt.usage, errors.Is(err, errUsage), err.Error())
		})
	}
}

func TestRun_UsageAndHelp(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, connerr.ExitUsage, run(context.Background(), []string{"frobnicate"}, io.Discard, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")

	stderr.Reset()
	assert.Equal(t, connerr.ExitOK, run(context.Background(), []string{"-h"}, io.Discard, &stderr))
	assert.Contains(t, stderr.String(), "usage: nordconnect")

	_, _, err := parseArgs([]string{"connect", "-h"}, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestStringList(t *testing.T) {
	var l stringList
	require.NoError(t, l.Set("us, de,,"))
	require.NoError(t, l.Set("nl"))
	assert.Equal(t, stringList{"us", "de", "nl"}, l)
	assert.Equal(t, "us,de,nl", l.String())
}
