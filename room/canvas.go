// room/canvas.go
package room

import (
	"hash/adler32"

	"github.com/google/uuid"
	"github.com/wfunc/doodleserver/apperr"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/network"
	"github.com/wfunc/doodleserver/pathcodec"
	"github.com/wfunc/doodleserver/state"
)

// DrawStroke appends a stroke from the drawer and relays it to everyone else
// in arrival order. Strokes from anyone else are dropped without a reply.
func (r *Room) DrawStroke(playerID string, stroke models.DrawingStroke) error {
	return r.doActivity("stroke", func() error {
		if !r.engine.IsDrawer(playerID) {
			return nil
		}
		canvas := &r.engine.Turn().Canvas

		stroke, err := pathcodec.Unpack(stroke)
		if err != nil {
			return apperr.Wrap(err, apperr.InvalidMessage, "bad stroke path")
		}
		if len(stroke.Points) == 0 {
			return apperr.New(apperr.InvalidMessage, "stroke has no points")
		}
		if limit := r.deps.Options.MaxStrokePoints; limit > 0 && len(stroke.Points) > limit {
			return apperr.Newf(apperr.InvalidMessage, "stroke exceeds %d points", limit)
		}
		if limit := r.deps.Options.MaxStrokes; limit > 0 && len(canvas.Strokes) >= limit {
			return apperr.New(apperr.InvalidMessage, "canvas is full")
		}
		if stroke.Tool == "" {
			stroke.Tool = models.ToolPen
		}
		stroke.ID = uuid.NewString()
		stroke.AuthorID = playerID
		stroke.Timestamp = r.deps.Clock()

		// 按房间内最差连接的压缩等级存储
		recipients := r.memberIDs(playerID)
		if level := r.minCompression(recipients); level > 0 {
			stroke.Points = pathcodec.Simplify(stroke.Points, pathcodec.EpsilonFor(level))
		}
		canvas.Strokes = append(canvas.Strokes, stroke)
		r.canvasChanged(canvas)

		for level, ids := range r.byCompression(recipients) {
			r.Multicast(ids, network.MustMessage(network.EventDrawingStroke, pathcodec.Pack(stroke, level)))
		}
		r.deps.Metrics.StrokeRelayed(len(recipients))
		return nil
	})
}

func (r *Room) ClearCanvas(playerID string) error {
	return r.doActivity("canvas_clear", func() error {
		if !r.engine.IsDrawer(playerID) {
			return apperr.New(apperr.NotDrawer)
		}
		canvas := &r.engine.Turn().Canvas
		canvas.Strokes = nil
		r.canvasChanged(canvas)
		r.Multicast(r.memberIDs(playerID), network.MustMessage(network.EventCanvasCleared, nil))
		return nil
	})
}

// UndoCanvas removes the drawer's last stroke.
func (r *Room) UndoCanvas(playerID string) error {
	return r.doActivity("canvas_undo", func() error {
		if !r.engine.IsDrawer(playerID) {
			return apperr.New(apperr.NotDrawer)
		}
		canvas := &r.engine.Turn().Canvas
		n := len(canvas.Strokes)
		if n == 0 {
			return nil
		}
		last := canvas.Strokes[n-1]
		canvas.Strokes = canvas.Strokes[:n-1]
		r.canvasChanged(canvas)
		r.Multicast(r.memberIDs(playerID), network.MustMessage(network.EventCanvasUndo, network.CanvasUndoPayload{
			StrokeID: last.ID,
		}))
		return nil
	})
}

// CanvasSync 给迟到或重连的玩家发送完整画布
func (r *Room) CanvasSync(playerID string) error {
	return r.do("canvas_sync", func() error {
		p := r.Member(playerID)
		if p == nil {
			return apperr.New(apperr.NotInRoom)
		}
		r.sendCanvas(p)
		return nil
	})
}

// Canvas returns a copy of the authoritative canvas.
func (r *Room) Canvas() (models.CanvasState, error) {
	var out models.CanvasState
	err := r.do("canvas", func() error {
		out = r.currentCanvas()
		out.Strokes = append([]models.DrawingStroke(nil), out.Strokes...)
		return nil
	})
	return out, err
}

func (r *Room) currentCanvas() models.CanvasState {
	if t := r.engine.Turn(); t != nil && t.Canvas.Background != "" {
		return t.Canvas
	}
	return models.CanvasState{Background: state.DefaultBackground, Checksum: Checksum(nil)}
}

func (r *Room) sendCanvas(p *models.Player) {
	canvas := r.currentCanvas()
	level := p.Quality().Compression
	if level > 0 {
		packed := make([]models.DrawingStroke, len(canvas.Strokes))
		for i, s := range canvas.Strokes {
			packed[i] = pathcodec.Pack(s, level)
		}
		canvas.Strokes = packed
	}
	r.SendTo(p.ID, network.MustMessage(network.EventCanvasState, network.CanvasStatePayload{
		Canvas:           canvas,
		CompressionLevel: level,
	}))
}

func (r *Room) canvasChanged(canvas *models.CanvasState) {
	canvas.UpdatedAt = r.deps.Clock()
	canvas.Checksum = Checksum(canvas.Strokes)
}

func (r *Room) minCompression(ids []string) int {
	level := -1
	for _, id := range ids {
		p := r.Member(id)
		if p == nil || !p.Connected() {
			continue
		}
		if c := p.Quality().Compression; level < 0 || c < level {
			level = c
		}
	}
	if level < 0 {
		return 0
	}
	return level
}

func (r *Room) byCompression(ids []string) map[int][]string {
	groups := make(map[int][]string)
	for _, id := range ids {
		p := r.Member(id)
		if p == nil {
			continue
		}
		level := p.Quality().Compression
		groups[level] = append(groups[level], id)
	}
	return groups
}

// Checksum is Adler-32 over the stroke ids in canvas order.
func Checksum(strokes []models.DrawingStroke) uint32 {
	h := adler32.New()
	for _, s := range strokes {
		h.Write([]byte(s.ID))
	}
	return h.Sum32()
}
