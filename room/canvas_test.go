package room

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/pathcodec"
)

func zigzag(n int) []models.Point {
	pts := make([]models.Point, n)
	for i := range pts {
		pts[i] = models.Point{X: float64(i), Y: float64(i%2) * 0.1}
	}
	return pts
}

func drawingRoom(t *testing.T, h *harness, ids ...string) *Room {
	t.Helper()
	room := startedPrivateGame(t, h, ids...)
	require.NoError(t, room.SelectWord(ids[0], "cat"))
	return room
}

func TestStrokeFromNonDrawerIsDropped(t *testing.T) {
	h := newHarness(t)
	room := drawingRoom(t, h, "p1", "p2")

	require.NoError(t, room.DrawStroke("p2", models.DrawingStroke{Color: "#000", Size: 2, Points: zigzag(5)}))
	assert.Nil(t, h.bc.last("p1", network.EventDrawingStroke))

	canvas, err := room.Canvas()
	require.NoError(t, err)
	assert.Empty(t, canvas.Strokes)
}

func TestStrokeRelayedInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	room := drawingRoom(t, h, "p1", "p2", "p3")

	for i := 0; i < 3; i++ {
		require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{
			ID:       "client-id",
			AuthorID: "p2",
			Color:    "#123456",
			Size:     float64(i + 1),
			Points:   zigzag(4),
		}))
	}

	relayed := h.bc.events("p2", network.EventDrawingStroke)
	require.Len(t, relayed, 3)
	assert.Empty(t, h.bc.events("p1", network.EventDrawingStroke))

	canvas, err := room.Canvas()
	require.NoError(t, err)
	require.Len(t, canvas.Strokes, 3)
	for i, m := range relayed {
		s := decode[models.DrawingStroke](t, m)
		assert.Equal(t, float64(i+1), s.Size)
		assert.Equal(t, "p1", s.AuthorID)
		assert.Equal(t, models.ToolPen, s.Tool)
		assert.NotEqual(t, "client-id", s.ID)
		assert.Equal(t, canvas.Strokes[i].ID, s.ID)
		assert.Empty(t, cmp.Diff(zigzag(4), s.Points))
	}
	assert.Equal(t, Checksum(canvas.Strokes), canvas.Checksum)
}

func TestStrokeBounds(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.MaxStrokes = 2
		o.MaxStrokePoints = 10
	})
	room := drawingRoom(t, h, "p1", "p2")

	err := room.DrawStroke("p1", models.DrawingStroke{})
	assert.True(t, apperr.Is(err, apperr.InvalidMessage))

	err = room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(11)})
	assert.True(t, apperr.Is(err, apperr.InvalidMessage))

	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(10)}))
	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(2)}))
	err = room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(2)})
	assert.True(t, apperr.Is(err, apperr.InvalidMessage))

	err = room.DrawStroke("p1", models.DrawingStroke{Path: []int64{1, 2, 3}, Scale: 10})
	assert.True(t, apperr.Is(err, apperr.InvalidMessage))
}

func TestStrokeCompressedPerRecipient(t *testing.T) {
	h := newHarness(t)
	room := drawingRoom(t, h, "p1", "p2", "p3")
	inRoom(t, room, func() {
		room.Member("p3").SetQuality(models.ConnectionQuality{Level: models.QualityPoor, Compression: 2})
	})

	raw := []models.Point{{X: 0, Y: 0}, {X: 5, Y: 0.2}, {X: 10, Y: 0}, {X: 15, Y: 8}}
	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: raw}))

	plain := decode[models.DrawingStroke](t, h.bc.last("p2", network.EventDrawingStroke))
	assert.Empty(t, cmp.Diff(raw, plain.Points))
	assert.Empty(t, plain.Path)

	packed := decode[models.DrawingStroke](t, h.bc.last("p3", network.EventDrawingStroke))
	assert.Nil(t, packed.Points)
	assert.NotEmpty(t, packed.Path)
	unpacked, err := pathcodec.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, raw[0], unpacked.Points[0])
	assert.Equal(t, raw[len(raw)-1], unpacked.Points[len(unpacked.Points)-1])
	assert.Less(t, len(unpacked.Points), len(raw))
}

func TestClearAndUndo(t *testing.T) {
	h := newHarness(t)
	room := drawingRoom(t, h, "p1", "p2")

	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(3)}))
	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(3)}))
	canvas, _ := room.Canvas()
	lastID := canvas.Strokes[1].ID

	assert.True(t, apperr.Is(room.UndoCanvas("p2"), apperr.NotDrawer))
	assert.True(t, apperr.Is(room.ClearCanvas("p2"), apperr.NotDrawer))

	require.NoError(t, room.UndoCanvas("p1"))
	undo := decode[network.CanvasUndoPayload](t, h.bc.last("p2", network.EventCanvasUndo))
	assert.Equal(t, lastID, undo.StrokeID)
	canvas, _ = room.Canvas()
	assert.Len(t, canvas.Strokes, 1)
	assert.Equal(t, Checksum(canvas.Strokes), canvas.Checksum)

	require.NoError(t, room.ClearCanvas("p1"))
	assert.NotNil(t, h.bc.last("p2", network.EventCanvasCleared))
	canvas, _ = room.Canvas()
	assert.Empty(t, canvas.Strokes)

	// 空画布撤销是空操作
	require.NoError(t, room.UndoCanvas("p1"))
}

func TestCanvasSyncSendsSnapshot(t *testing.T) {
	h := newHarness(t)
	room := drawingRoom(t, h, "p1", "p2")
	require.NoError(t, room.DrawStroke("p1", models.DrawingStroke{Points: zigzag(6)}))

	require.NoError(t, room.CanvasSync("p2"))
	got := decode[network.CanvasStatePayload](t, h.bc.last("p2", network.EventCanvasState))
	require.Len(t, got.Canvas.Strokes, 1)
	assert.Equal(t, "#FFFFFF", got.Canvas.Background)
	assert.Equal(t, 0, got.CompressionLevel)

	assert.True(t, apperr.Is(room.CanvasSync("nobody"), apperr.NotInRoom))
}
