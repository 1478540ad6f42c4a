package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(WithLevel(Warn), WithWriter(&buf), WithPrefix(""))
	require.NoError(t, err)

	log.Info("should be filtered")
	log.Warn("should appear")

	output := buf.String()
	require.NotContains(t, output, "should be filtered")
	require.Contains(t, output, "should appear")
}

func TestLogger_FormattedVariantsInterpolate(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(WithWriter(&buf), WithPrefix(""))
	require.NoError(t, err)

	log.Infof("term advanced to %d", 7)

	require.True(t, strings.Contains(buf.String(), "term advanced to 7"))
}

func TestLevel_StringPanicsOnInvalidValue(t *testing.T) {
	require.Panics(t, func() {
		_ = Level(99).String()
	})
}
