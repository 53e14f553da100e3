package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		wantErr bool
	}{
		{name: "start", from: StateIdle, to: StateValidatingInput},
		{name: "forward", from: StateResolvingDirectories, to: StateLocatingRemoteFile},
		{name: "upload to success", from: StateUploading, to: StateSucceeded},
		{name: "any to failed", from: StateLocatingLocalFile, to: StateFailed},
		{name: "any to cancelled", from: StateBuildingRequest, to: StateCancelled},
		{name: "idle to failed", from: StateIdle, to: StateFailed},
		{name: "skip step", from: StateValidatingInput, to: StateUploading, wantErr: true},
		{name: "backwards", from: StateUploading, to: StateBuildingRequest, wantErr: true},
		{name: "early success", from: StateBuildingRequest, to: StateSucceeded, wantErr: true},
		{name: "from terminal", from: StateSucceeded, to: StateFailed, wantErr: true},
		{name: "cancelled is final", from: StateCancelled, to: StateIdle, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateSucceeded))
	assert.True(t, IsTerminal(StateFailed))
	assert.True(t, IsTerminal(StateCancelled))
	assert.False(t, IsTerminal(StateIdle))
	assert.False(t, IsTerminal(StateUploading))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "resolving_directories", StateResolvingDirectories.String())
	assert.Equal(t, "state(42)", State(42).String())
}
