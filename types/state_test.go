package types

import "testing"

func TestFieldStateString(t *testing.T) {
	tests := []struct {
		state FieldState
		want  string
	}{
		{FieldUnsynchronized, "Unsynchronized"},
		{FieldSynchronized, "Synchronized"},
		{FieldState(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("FieldState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeStateString(t *testing.T) {
	tests := []struct {
		state NodeState
		want  string
	}{
		{NodeInit, "Init"},
		{NodeReady, "Ready"},
		{NodeSyncing, "Syncing"},
		{NodeBalancing, "Balancing"},
		{NodeClosed, "Closed"},
		{NodeState(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("NodeState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
