package bubbletea_test

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/hrchat"
	bt "github.com/fwojciec/hrchat/bubbletea"
	"github.com/fwojciec/hrchat/inmem"
	"github.com/stretchr/testify/require"
)

const sessionID = "s1"

// plain renders markdown without colors so assertions see raw text.
var plain = bt.WithMarkdownStyle("notty")

func newModel(send bt.SendFunc, store hrchat.StreamStore, transcript hrchat.Transcript, opts ...bt.Option) bt.Model {
	if transcript.Session.ID == "" {
		transcript.Session.ID = sessionID
	}
	return bt.New(send, store, transcript, hrchat.DefaultTheme(), append([]bt.Option{plain}, opts...)...)
}

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, send bt.SendFunc) bt.Model {
	t.Helper()
	return initModelWithSize(t, send, 80, 24)
}

// initModelWithSize creates a model with a custom terminal size.
func initModelWithSize(t *testing.T, send bt.SendFunc, width, height int) bt.Model {
	t.Helper()
	m := newModel(send, inmem.NewStreamStore(), hrchat.Transcript{})
	return updateModel(t, m, tea.WindowSizeMsg{Width: width, Height: height})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// nopSend is a send function that does nothing.
func nopSend(_ context.Context, _ hrchat.SendMessageRequest, _ func(hrchat.Event)) error {
	return nil
}
