package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	l := New("dispatcher", "debug", "text")

	assert.Equal(t, logrus.DebugLevel, l.Logger.Level)
	_, isText := l.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestNewDefaultsOnInvalidLevel(t *testing.T) {
	l := New("resolver", "not-a-level", "json")
	assert.Equal(t, logrus.InfoLevel, l.Logger.Level)
}

func TestWithContextCarriesInvocationID(t *testing.T) {
	l := New("engine", "info", "json")
	ctx := WithInvocation(context.Background(), "inv-123")

	entry := l.WithContext(ctx)
	assert.Equal(t, "inv-123", entry.Data["invocation_id"])
	assert.Equal(t, "engine", entry.Data["component"])
}

func TestInvocationIDEmptyWithoutContext(t *testing.T) {
	assert.Equal(t, "", InvocationID(context.Background()))
}
