package trackgeom

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/skywatch-data/skywatch/internal/geo"
)

// CircleFit is the result of fitting a circle to a track on a local plane.
type CircleFit struct {
	CenterLat    float64
	CenterLon    float64
	RadiusNM     float64
	MeanErrorNM  float64 // mean absolute radial residual
	Confidence   float64 // [0,1], derived from the relative fit error
}

// FitCircle fits a circle to the point sequence using the algebraic (Kasa)
// least-squares formulation solved on a local tangent plane. Confidence is
// 1 - meanError/radius clamped to [0,1]; degenerate inputs (fewer than three
// points, collinear geometry, vanishing radius) report zero confidence.
func FitCircle(points []Point) CircleFit {
	if len(points) < 3 {
		return CircleFit{}
	}

	refLat, refLon := Centroid(points)

	// Kasa fit: x² + y² + D·x + E·y + F = 0, linear in (D, E, F).
	n := len(points)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		x, y := localXY(p, refLat, refLon)
		xs[i], ys[i] = x, y
		a.Set(i, 0, x)
		a.Set(i, 1, y)
		a.Set(i, 2, 1)
		b.SetVec(i, -(x*x + y*y))
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return CircleFit{}
	}
	d, e, f := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)

	cx := -d / 2
	cy := -e / 2
	r2 := cx*cx + cy*cy - f
	if r2 <= 0 {
		return CircleFit{}
	}
	radius := math.Sqrt(r2)

	var sumErr float64
	for i := range xs {
		ri := math.Hypot(xs[i]-cx, ys[i]-cy)
		sumErr += math.Abs(ri - radius)
	}
	meanErr := sumErr / float64(n)

	conf := 1 - meanErr/radius
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	centerLat := refLat + cy/geo.NMPerDegreeLat
	centerLon := refLon + cx/(geo.NMPerDegreeLat*math.Cos(refLat*math.Pi/180))

	return CircleFit{
		CenterLat:   centerLat,
		CenterLon:   centerLon,
		RadiusNM:    radius,
		MeanErrorNM: meanErr,
		Confidence:  conf,
	}
}
