// Package pathcodec reduces and packs freehand stroke points for transit.
package pathcodec

import (
	"errors"
	"math"

	"github.com/wfunc/doodleserver/models"
)

// Compression levels map to simplification tolerances in canvas units.
var epsilons = []float64{0, 0.75, 1.5, 3}

// MaxLevel 最高压缩等级
const MaxLevel = 3

// DefaultScale quantizes coordinates to 1/10 of a canvas unit.
const DefaultScale = 10

var ErrOddPath = errors.New("pathcodec: encoded path has odd length")

// EpsilonFor returns the simplification tolerance for a compression level.
func EpsilonFor(level int) float64 {
	if level <= 0 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return epsilons[level]
}

// Simplify applies Ramer-Douglas-Peucker reduction. The first and last points
// are always kept; epsilon <= 0 returns a copy of the input unchanged.
func Simplify(points []models.Point, epsilon float64) []models.Point {
	out := make([]models.Point, 0, len(points))
	if epsilon <= 0 || len(points) < 3 {
		return append(out, points...)
	}

	keep := make([]bool, len(points))
	keep[0], keep[len(points)-1] = true, true

	// explicit stack instead of recursion; long strokes can be thousands of points
	type span struct{ first, last int }
	stack := []span{{0, len(points) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.last-s.first < 2 {
			continue
		}

		maxDist, index := 0.0, -1
		for i := s.first + 1; i < s.last; i++ {
			d := perpendicularDistance(points[i], points[s.first], points[s.last])
			if d > maxDist {
				maxDist, index = d, i
			}
		}
		if maxDist > epsilon {
			keep[index] = true
			stack = append(stack, span{s.first, index}, span{index, s.last})
		}
	}

	for i, p := range points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func perpendicularDistance(p, a, b models.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	if dx == 0 && dy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / math.Hypot(dx, dy)
}

// Encode quantizes points by scale and stores them as x,y deltas from the
// previous point. The first pair is absolute. Lossy: every decoded point, the
// endpoints included, lands within 0.5/scale of the input. Deltas are taken
// between rounded values, so the error does not build up along the path.
func Encode(points []models.Point, scale float64) []int64 {
	if scale <= 0 {
		scale = DefaultScale
	}
	out := make([]int64, 0, len(points)*2)
	var px, py int64
	for _, p := range points {
		x := int64(math.Round(p.X * scale))
		y := int64(math.Round(p.Y * scale))
		out = append(out, x-px, y-py)
		px, py = x, y
	}
	return out
}

// Decode reverses Encode.
func Decode(path []int64, scale float64) ([]models.Point, error) {
	if len(path)%2 != 0 {
		return nil, ErrOddPath
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	out := make([]models.Point, 0, len(path)/2)
	var x, y int64
	for i := 0; i < len(path); i += 2 {
		x += path[i]
		y += path[i+1]
		out = append(out, models.Point{X: float64(x) / scale, Y: float64(y) / scale})
	}
	return out, nil
}

// Pack simplifies a stroke for the given compression level and, above level 0,
// replaces the raw points with the delta encoding. Packed strokes are snapped
// to a 1/DefaultScale grid; level 0 is the only lossless level.
func Pack(stroke models.DrawingStroke, level int) models.DrawingStroke {
	if level <= 0 {
		return stroke
	}
	pts := Simplify(stroke.Points, EpsilonFor(level))
	stroke.Path = Encode(pts, DefaultScale)
	stroke.Scale = DefaultScale
	stroke.Points = nil
	return stroke
}

// Unpack restores raw points on a stroke that arrived delta encoded.
func Unpack(stroke models.DrawingStroke) (models.DrawingStroke, error) {
	if len(stroke.Path) == 0 {
		return stroke, nil
	}
	pts, err := Decode(stroke.Path, stroke.Scale)
	if err != nil {
		return stroke, err
	}
	stroke.Points = pts
	stroke.Path = nil
	stroke.Scale = 0
	return stroke, nil
}
