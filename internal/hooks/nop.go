// Package hooks provides default node hook callbacks.
package hooks

import (
	"context"

	"github.com/eclab/mason-sub011/types"
)

// NopHooks implements every hook as a no-op.
type NopHooks struct{}

// NewNop returns hooks whose callbacks all do nothing.
func NewNop() types.Hooks {
	h := &NopHooks{}

	return types.Hooks{
		OnStateChanged: h.OnStateChanged,
		OnRebalanced:   h.OnRebalanced,
		OnError:        h.OnError,
	}
}

// Fill returns h with every nil callback replaced by a no-op, so callers can
// invoke callbacks without nil checks.
func Fill(h *types.Hooks) types.Hooks {
	out := NewNop()
	if h == nil {
		return out
	}
	if h.OnStateChanged != nil {
		out.OnStateChanged = h.OnStateChanged
	}
	if h.OnRebalanced != nil {
		out.OnRebalanced = h.OnRebalanced
	}
	if h.OnError != nil {
		out.OnError = h.OnError
	}

	return out
}

// OnStateChanged does nothing.
func (h *NopHooks) OnStateChanged(context.Context, types.NodeState, types.NodeState) error {
	return nil
}

// OnRebalanced does nothing.
func (h *NopHooks) OnRebalanced(context.Context, int, int) error {
	return nil
}

// OnError does nothing.
func (h *NopHooks) OnError(context.Context, error) error {
	return nil
}
