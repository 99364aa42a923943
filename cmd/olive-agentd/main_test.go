package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliveapp/olive-agents/internal/config"
	"github.com/oliveapp/olive-agents/internal/notify"
)

func TestBuildGateway(t *testing.T) {
	logger := zerolog.Nop()

	gw, err := buildGateway(config.NotifyConfig{Gateway: "none"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "log", gw.Name())

	gw, err = buildGateway(config.NotifyConfig{Gateway: "http", HTTP: config.GatewayHTTP{URL: "http://gateway.local/send"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.HTTPGateway{}, gw)

	gw, err = buildGateway(config.NotifyConfig{Gateway: "twilio", Twilio: config.TwilioConfig{AccountSID: "AC1", AuthToken: "t", From: "whatsapp:+1"}}, logger)
	require.NoError(t, err)
	assert.Equal(t, "twilio", gw.Name())

	_, err = buildGateway(config.NotifyConfig{Gateway: "pigeon"}, logger)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "olive-agentd dev"))
}

func TestAgentsCommandLocal(t *testing.T) {
	t.Setenv("OLIVE_STORAGE_DSN", t.TempDir()+"/cli.db")
	t.Chdir(t.TempDir())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"agents"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "smart-bill-reminder")
	assert.Contains(t, out.String(), "weekly_sunday")
}
