package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found", NewCollectError(ErrorTypeToolNotFound, "invoke", "iostat", errors.New("missing")), ErrToolNotFound, true},
		{"timeout", NewCollectError(ErrorTypeToolTimeout, "invoke", "smartctl", errors.New("killed")), ErrToolTimeout, true},
		{"timeout is not not-found", NewCollectError(ErrorTypeToolTimeout, "invoke", "smartctl", errors.New("killed")), ErrToolNotFound, false},
		{"parse", WrapParseError("cpu", errors.New("no header")), ErrParse, true},
		{"write", WrapWriteError("/tmp/x.csv", errors.New("read-only")), ErrWrite, true},
		{"enumeration", WrapEnumerationError(errors.New("boom")), ErrEnumeration, true},
		{"wrapped underlying", NewCollectError(ErrorTypeParse, "parse", "cpu", ErrInvalidInput), ErrInvalidInput, true},
		{"through fmt wrap", fmt.Errorf("cycle: %w", WrapWriteError("p", errors.New("x"))), ErrWrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestCollectErrorMessage(t *testing.T) {
	err := NewCollectError(ErrorTypeToolNonZeroExit, "invoke", "smartctl", errors.New("exit status 4")).
		WithDevice("sda").
		WithExit(4, []byte("partial"))

	assert.Equal(t, "invoke smartctl (sda) failed with exit code 4: exit status 4", err.Error())
	assert.Equal(t, []byte("partial"), PartialOutput(err))

	plain := WrapParseError("memory", errors.New("no Mem: line"))
	assert.Equal(t, "parse memory failed: no Mem: line", plain.Error())
	assert.Nil(t, PartialOutput(plain))
}

func TestTypeOfAndIsToolFailure(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorTypeParse, TypeOf(WrapParseError("cpu", errors.New("x"))))

	assert.True(t, IsToolFailure(NewCollectError(ErrorTypeToolTimeout, "invoke", "vmstat", errors.New("x"))))
	assert.True(t, IsToolFailure(NewCollectError(ErrorTypeToolNotFound, "invoke", "ifstat", errors.New("x"))))
	assert.False(t, IsToolFailure(WrapParseError("cpu", errors.New("x"))))
	assert.False(t, IsToolFailure(nil))
}
