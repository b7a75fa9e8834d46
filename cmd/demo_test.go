package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/orbital/internal/client"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/protocol"
)

func TestGradient(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"wide", 16, 4},
		{"single pixel", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Gradient(tt.w, tt.h)
			require.Equal(t, tt.w, b.Width)
			require.Equal(t, tt.h, b.Height)

			c, _ := b.PixelAt(0, 0)
			assert.Equal(t, pixbuf.RGB(0, 0, 0x80), c)
			if tt.w > 1 && tt.h > 1 {
				c, _ = b.PixelAt(tt.w-1, tt.h-1)
				assert.Equal(t, pixbuf.RGB(0xff, 0xff, 0x80), c)
			}
		})
	}
}

func TestDemoLoop(t *testing.T) {
	a, b := net.Pipe()
	c := client.New(a)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- demoLoop(context.Background(), c, 5, "demo") }()

	// Resizes of other windows are ignored; ours triggers a repaint.
	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.Resized{WindowID: 9, W: 1, H: 1}))
	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.Resized{WindowID: 5, W: 4, H: 3}))

	serial, msg, err := protocol.ReadFrame(b, 0)
	require.NoError(t, err)
	blit, ok := msg.(*protocol.Blit)
	require.True(t, ok, "got %v", msg.Kind())
	assert.Equal(t, uint32(5), blit.ID)
	assert.Equal(t, [2]int32{4, 3}, [2]int32{blit.W, blit.H})
	assert.Len(t, blit.Pixels, 12)
	require.NoError(t, protocol.WriteFrame(b, serial, protocol.ReplyTo(0, nil)))

	// expect reads the next command, checks it and answers it.
	expect := func(want protocol.Message, answer protocol.Message) {
		t.Helper()
		serial, msg, err := protocol.ReadFrame(b, 0)
		require.NoError(t, err)
		assert.Equal(t, want, msg)
		require.NoError(t, protocol.WriteFrame(b, serial, answer))
	}

	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.ClipboardRequest{WindowID: 5, Action: protocol.ClipboardCopy}))
	expect(&protocol.SetClipboard{Data: []byte("demo")}, protocol.ReplyTo(0, nil))

	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.ClipboardRequest{WindowID: 5, Action: protocol.ClipboardPaste}))
	expect(&protocol.GetClipboard{}, &protocol.Clipboard{Data: []byte("pasted")})
	expect(&protocol.SetTitle{ID: 5, Title: "pasted"}, protocol.ReplyTo(0, nil))

	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.ClipboardRequest{WindowID: 5, Action: protocol.ClipboardCut}))
	expect(&protocol.SetClipboard{Data: []byte("pasted")}, protocol.ReplyTo(0, nil))

	require.NoError(t, protocol.WriteFrame(b, 0, &protocol.Closed{WindowID: 5}))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("demo did not exit on Closed")
	}
}
