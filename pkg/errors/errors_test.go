package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	assert.Equal(t, "ingest: operation cancelled: run interrupted", New(ErrCancelled, "ingest", "run interrupted").Error())
	assert.Equal(t, "invalid configuration: bad", New(ErrConfiguration, "", "bad").Error())
	assert.Equal(t, "x: unknown item type: FOO", Newf(ErrUnknownItemType, "x", "%s", "FOO").Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{New(ErrTransient, "op", "reset"), KindTransient},
		{fmt.Errorf("wrapped: %w", ErrRemoteRejected), KindTransient},
		{context.DeadlineExceeded, KindTransient},
		{New(ErrIndexOperation, "bulk", "429"), KindTransient},
		{ErrMissingID, KindMalformed},
		{New(ErrPersistence, "upsert", "deadlock"), KindPersistence},
		{ErrTableNotFound, KindPersistence},
		{New(ErrUnknownItemType, "types", "FOO"), KindConfiguration},
		{context.Canceled, KindCancelled},
		{errors.New("boom"), KindInternal},
		{nil, KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(New(ErrConfiguration, "config.validate", "missing password")))
	assert.Equal(t, 130, ExitCode(New(ErrCancelled, "ingest", "interrupted")))
	assert.Equal(t, 1, ExitCode(New(ErrPersistence, "connect", "refused")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "internal", Kind(99).String())
}
