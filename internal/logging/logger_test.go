package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewFallsBackToInfoLevelOnInvalidLevel(t *testing.T) {
	l := New(Config{Level: "not-a-level", Format: "text", Output: "stdout"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewParsesConfiguredLevel(t *testing.T) {
	l := New(Config{Level: "debug", Format: "text", Output: "stdout"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewSelectsJSONFormatterCaseInsensitively(t *testing.T) {
	l := New(Config{Level: "info", Format: "JSON", Output: "stdout"})
	_, ok := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewDefaultsToTextFormatterForUnknownFormat(t *testing.T) {
	l := New(Config{Level: "info", Format: "yaml", Output: "stdout"})
	_, ok := l.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestNamedTagsComponentField(t *testing.T) {
	l := NewDefault("test")
	entry := l.Named("widget")
	assert.Equal(t, "widget", entry.Data["component"])
}

func TestWithFieldsCarriesAllFields(t *testing.T) {
	l := NewDefault("test")
	entry := l.WithFields(logrus.Fields{"a": 1, "b": "x"})
	assert.Equal(t, 1, entry.Data["a"])
	assert.Equal(t, "x", entry.Data["b"])
}
