package main

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *logtest.Hook {
	t.Helper()
	previous := logger
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	logger = l
	t.Cleanup(func() { logger = previous })
	return hook
}

func TestRunError_FatalFetchLogsDetail(t *testing.T) {
	hook := captureLogs(t)

	cause := errors.FetchError(stderrors.New("rate limited"), http.StatusForbidden, "list commits").
		WithContext("owner", "wikimedia")
	err := runError(cause)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GitHub returned status 403")
	assert.ErrorIs(t, err, cause)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Contains(t, entry.Message, "[CRITICAL] [FETCH] list commits")
	assert.Contains(t, entry.Message, "owner: wikimedia")
}

func TestRunError_NonFatalPassesThroughQuietly(t *testing.T) {
	hook := captureLogs(t)

	cause := errors.StorageError(stderrors.New("locked"), "index history")
	err := runError(cause)

	assert.Same(t, cause, err)
	assert.Empty(t, hook.AllEntries())
}

func TestRunError_PlainError(t *testing.T) {
	hook := captureLogs(t)

	cause := stderrors.New("boom")

	assert.Equal(t, cause, runError(cause))
	assert.Empty(t, hook.AllEntries())
}
