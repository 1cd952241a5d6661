package presence

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/drawspace/core/internal/transport"
)

func TestTypingAutoClearsAfterTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SetTyping(true, "comment-42")
	waitForRecord(t, tr, GlobalScope(), "u1", func(r Record) bool {
		return r.Typing && r.TypingContext == "comment-42"
	})

	mClock.Advance(DefaultTypingTimeout).MustWait(ctx)
	waitForRecord(t, tr, GlobalScope(), "u1", func(r Record) bool {
		return !r.Typing && r.TypingContext == ""
	})
}

func TestTypingRepeatCallsExtendTheWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SetTyping(true, "comment-1")
	mClock.Advance(2 * time.Second).MustWait(ctx)

	// keystroke at t=2s pushes expiry to t=5s
	s.SetTyping(true, "comment-1")
	mClock.Advance(2 * time.Second).MustWait(ctx)

	// t=4s: inside the extended window, still typing
	waitForRecord(t, tr, GlobalScope(), "u1", func(r Record) bool { return r.Typing })

	mClock.Advance(time.Second).MustWait(ctx)
	waitForRecord(t, tr, GlobalScope(), "u1", func(r Record) bool { return !r.Typing })
}

func TestTypingExplicitOffCancelsExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SetTyping(true, "comment-1")
	s.SetTyping(false, "")
	waitForRecord(t, tr, GlobalScope(), "u1", func(r Record) bool { return !r.Typing })

	// the stopped timer must not fire a second clear or panic
	mClock.Advance(DefaultTypingTimeout).MustWait(ctx)

	rec, ok := scopeRecord(t, tr, GlobalScope(), "u1")
	require.True(t, ok)
	require.False(t, rec.Typing)
}
