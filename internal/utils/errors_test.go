package utils

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		solution string
		err      error
		want     string
	}{
		{
			name:     "with solution and cause",
			message:  "Trace not found: t1",
			solution: "Run 'crewview trace list crew research'",
			err:      errors.New("HTTP 404"),
			want:     "Trace not found: t1\n\n💡 Solution: Run 'crewview trace list crew research'\n\nDetails: HTTP 404",
		},
		{
			name:    "message only",
			message: "No crews registered",
			want:    "No crews registered",
		},
		{
			name:     "solution without cause",
			message:  "Config file already exists",
			solution: "Pass --force to overwrite it",
			want:     "Config file already exists\n\n💡 Solution: Pass --force to overwrite it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewUserError(tt.message, tt.solution, tt.err).Error())
		})
	}
}

func TestUserErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(NewUserError("watch failed", "", cause))
	assert.ErrorIs(t, err, cause)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("kind", `"team" is not crew or flow`)
	assert.Equal(t, `invalid kind: "team" is not crew or flow`, err.Error())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestExplainBackendError(t *testing.T) {
	const server = "http://localhost:5000"

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, ExplainBackendError(server, nil))
	})

	t.Run("connection refused", func(t *testing.T) {
		refused := &url.Error{Op: "Get", URL: server + "/api/crews", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
		err := ExplainBackendError(server, refused)

		var ue *UserError
		require.ErrorAs(t, err, &ue)
		assert.Contains(t, ue.Message, "Cannot reach the backend at "+server)
		assert.Contains(t, ue.Solution, "--server")
		assert.ErrorIs(t, err, refused)
	})

	t.Run("timeout", func(t *testing.T) {
		err := ExplainBackendError(server, &url.Error{Op: "Get", URL: server, Err: timeoutErr{}})

		var ue *UserError
		require.ErrorAs(t, err, &ue)
		assert.Contains(t, ue.Message, "did not answer in time")
	})

	t.Run("non network errors pass through", func(t *testing.T) {
		plain := errors.New("HTTP 500: boom")
		assert.Same(t, plain, ExplainBackendError(server, plain))
		canceled := &url.Error{Op: "Get", URL: server, Err: context.Canceled}
		assert.Same(t, canceled, ExplainBackendError(server, canceled))
	})

	t.Run("user errors pass through", func(t *testing.T) {
		ue := NewUserError("already explained", "", nil)
		assert.Same(t, ue, ExplainBackendError(server, ue))
	})
}
