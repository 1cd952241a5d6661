package presence

import (
	"testing"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/drawspace/core/internal/transport"
)

func TestSwitchProjectMovesRecord(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	waitForRecord(t, tr, ProjectScope("p1"), "u1", func(r Record) bool { return r.ProjectID == "p1" })

	s.SwitchProject("p2")
	waitForGone(t, tr, ProjectScope("p1"), "u1")
	waitForRecord(t, tr, ProjectScope("p2"), "u1", func(r Record) bool { return r.ProjectID == "p2" })

	// the global record is untouched by navigation
	_, ok := scopeRecord(t, tr, GlobalScope(), "u1")
	require.True(t, ok)

	require.Equal(t, []Scope{GlobalScope(), ProjectScope("p2")}, s.CurrentScopes())
}

func TestSwitchProjectLeavesCanvasBehind(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	s.SwitchCanvas("c1")
	waitForRecord(t, tr, CanvasScope("p1", "c1"), "u1", func(Record) bool { return true })

	s.SwitchProject("p2")
	waitForGone(t, tr, CanvasScope("p1", "c1"), "u1")
	waitForGone(t, tr, ProjectScope("p1"), "u1")

	require.Equal(t, []Scope{GlobalScope(), ProjectScope("p2")}, s.CurrentScopes(),
		"leaving a project leaves its canvas too")
}

func TestSwitchProjectToSameIsNoop(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	s.SwitchCanvas("c1")
	s.SwitchProject("p1")

	waitForRecord(t, tr, CanvasScope("p1", "c1"), "u1", func(Record) bool { return true })
	require.Equal(t, []Scope{GlobalScope(), ProjectScope("p1"), CanvasScope("p1", "c1")}, s.CurrentScopes())
}

func TestSwitchCanvasDropsCursorAndSelection(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	s.SwitchCanvas("c1")
	s.UpdateCursorPosition(5, 7)
	s.UpdateSelectedShapes([]string{"shape-a", "shape-b"})

	waitForRecord(t, tr, CanvasScope("p1", "c1"), "u1", func(r Record) bool {
		return r.Cursor != nil && len(r.SelectedShapeIDs) == 2
	})

	s.SwitchCanvas("c2")
	waitForGone(t, tr, CanvasScope("p1", "c1"), "u1")
	rec := waitForRecord(t, tr, CanvasScope("p1", "c2"), "u1", func(Record) bool { return true })

	require.Nil(t, rec.Cursor, "cursor must not carry over to the next canvas")
	require.Empty(t, rec.SelectedShapeIDs, "selection must not carry over to the next canvas")
	require.Equal(t, "c2", rec.CanvasID)
	require.Equal(t, "p1", rec.ProjectID)
}

func TestSwitchCanvasOffClearsCanvasScope(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	s.SwitchCanvas("c1")
	waitForRecord(t, tr, CanvasScope("p1", "c1"), "u1", func(Record) bool { return true })

	s.SwitchCanvas("")
	waitForGone(t, tr, CanvasScope("p1", "c1"), "u1")
	require.Equal(t, []Scope{GlobalScope(), ProjectScope("p1")}, s.CurrentScopes())
}

func TestCursorUpdateWithoutCanvasPublishesNothing(t *testing.T) {
	t.Parallel()

	mClock := quartz.NewMock(t)
	tr := transport.NewMemory()
	s := newTestSession(t, tr, "u1", mClock)

	s.SwitchProject("p1")
	s.UpdateCursorPosition(1, 2)

	rec := waitForRecord(t, tr, ProjectScope("p1"), "u1", func(Record) bool { return true })
	require.Nil(t, rec.Cursor, "cursor only travels on the canvas scope")

	global, ok := scopeRecord(t, tr, GlobalScope(), "u1")
	require.True(t, ok)
	require.Nil(t, global.Cursor)
}
