package main

import (
	"testing"

	"market_maker/internal/alert"
	"market_maker/internal/config"
	"market_maker/internal/core"

	"github.com/stretchr/testify/assert"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

func TestWireAlertChannels_SkipsUnconfiguredChannels(t *testing.T) {
	am := alert.NewAlertManager(&mockLogger{})
	wireAlertChannels(am, config.AlertingConfig{})
	assert.Equal(t, 0, am.ChannelCount())
}

func TestWireAlertChannels_RegistersConfiguredChannels(t *testing.T) {
	am := alert.NewAlertManager(&mockLogger{})
	wireAlertChannels(am, config.AlertingConfig{
		TelegramBotToken: "token",
		TelegramChatID:   "123",
		SlackWebhookURL:  "https://hooks.slack.example/abc",
	})
	assert.Equal(t, 2, am.ChannelCount())
}

func TestWireAlertChannels_RequiresBothTelegramFields(t *testing.T) {
	am := alert.NewAlertManager(&mockLogger{})
	wireAlertChannels(am, config.AlertingConfig{TelegramBotToken: "token"})
	assert.Equal(t, 0, am.ChannelCount())
}
