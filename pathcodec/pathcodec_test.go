package pathcodec

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/doodleserver/models"
)

func wave(n int) []models.Point {
	pts := make([]models.Point, n)
	for i := range pts {
		x := float64(i)
		pts[i] = models.Point{X: x, Y: 20 * math.Sin(x/8)}
	}
	return pts
}

func TestSimplifyZeroEpsilonIsIdentity(t *testing.T) {
	pts := wave(100)
	got := Simplify(pts, 0)
	if diff := cmp.Diff(pts, got); diff != "" {
		t.Fatalf("Simplify(eps=0) changed the stroke (-want +got):\n%s", diff)
	}
	// a copy, not the same backing array
	got[0].X = -1
	assert.NotEqual(t, -1.0, pts[0].X)
}

func TestSimplifyKeepsEndpoints(t *testing.T) {
	pts := wave(500)
	for _, eps := range []float64{0.1, 1, 5, 50} {
		got := Simplify(pts, eps)
		require.GreaterOrEqual(t, len(got), 2)
		assert.Equal(t, pts[0], got[0])
		assert.Equal(t, pts[len(pts)-1], got[len(got)-1])
		assert.LessOrEqual(t, len(got), len(pts))
	}
}

func TestSimplifyCollinear(t *testing.T) {
	pts := []models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}}
	got := Simplify(pts, 0.01)
	assert.Equal(t, []models.Point{{X: 0, Y: 0}, {X: 4, Y: 4}}, got)
}

func TestSimplifyKeepsCorner(t *testing.T) {
	pts := []models.Point{{X: 0, Y: 0}, {X: 5, Y: 0.1}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 10, Y: 10}}
	got := Simplify(pts, 1)
	assert.Equal(t, []models.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, got)
}

func TestSimplifyBoundedError(t *testing.T) {
	pts := wave(300)
	eps := 2.0
	got := Simplify(pts, eps)

	// every dropped point lies within eps of the kept segment spanning it
	j := 0
	for i, p := range pts {
		for j+1 < len(got) && got[j+1].X < p.X {
			j++
		}
		if j+1 >= len(got) {
			break
		}
		d := perpendicularDistance(p, got[j], got[j+1])
		assert.LessOrEqual(t, d, eps+1e-9, "point %d", i)
	}
}

func TestEncodeDecode(t *testing.T) {
	pts := []models.Point{{X: 10.04, Y: 20.06}, {X: 10.5, Y: 19.9}, {X: 300, Y: 0}, {X: 0, Y: 299.99}}
	path := Encode(pts, DefaultScale)
	assert.Equal(t, []int64{100, 201, 5, -2, 2895, -199, -3000, 3000}, path)

	back, err := Decode(path, DefaultScale)
	require.NoError(t, err)
	opt := cmpopts.EquateApprox(0, 0.05)
	if diff := cmp.Diff(pts, back, opt); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}

	_, err = Decode([]int64{1, 2, 3}, DefaultScale)
	assert.ErrorIs(t, err, ErrOddPath)
}

func TestPackUnpack(t *testing.T) {
	stroke := models.DrawingStroke{ID: "s1", Tool: models.ToolPen, Points: wave(200)}

	assert.Equal(t, stroke, Pack(stroke, 0))

	packed := Pack(stroke, 2)
	assert.Nil(t, packed.Points)
	assert.NotEmpty(t, packed.Path)
	assert.Less(t, len(packed.Path)/2, len(stroke.Points))

	restored, err := Unpack(packed)
	require.NoError(t, err)
	assert.InDelta(t, stroke.Points[0].Y, restored.Points[0].Y, 0.05)
	last := len(restored.Points) - 1
	assert.InDelta(t, stroke.Points[199].X, restored.Points[last].X, 0.05)
}

// Quantization error stays inside half a grid step for every point, so a long
// stroke does not drift and its endpoints land where they were drawn.
func TestEncodeErrorIsBounded(t *testing.T) {
	pts := make([]models.Point, 5000)
	for i := range pts {
		pts[i] = models.Point{X: float64(i) * 0.123, Y: 0.037 * float64(i%97)}
	}
	back, err := Decode(Encode(pts, DefaultScale), DefaultScale)
	require.NoError(t, err)
	require.Len(t, back, len(pts))
	limit := 0.5/DefaultScale + 1e-9
	for i := range pts {
		assert.InDelta(t, pts[i].X, back[i].X, limit, "x at %d", i)
		assert.InDelta(t, pts[i].Y, back[i].Y, limit, "y at %d", i)
	}

	// on-grid endpoints survive a pack round trip unchanged
	stroke := models.DrawingStroke{ID: "s2", Tool: models.ToolPen, Points: []models.Point{{X: 12.5, Y: 40.1}, {X: 13, Y: 41}, {X: 80.7, Y: 3.2}}}
	restored, err := Unpack(Pack(stroke, MaxLevel))
	require.NoError(t, err)
	assert.InDelta(t, 12.5, restored.Points[0].X, 1e-9)
	assert.InDelta(t, 40.1, restored.Points[0].Y, 1e-9)
	last := restored.Points[len(restored.Points)-1]
	assert.InDelta(t, 80.7, last.X, 1e-9)
	assert.InDelta(t, 3.2, last.Y, 1e-9)
}
