package engine

import (
	"fmt"
	"math"

	iface "PartInspect/interface"

	"gonum.org/v1/gonum/mat"
)

// Similarity is a translation + rotation + uniform scale transform.
// Forward direction is source set onto destination set as estimated,
// i.e. p' = Scale * R(Theta) * p + T.
type Similarity struct {
	Theta float64
	Scale float64
	TX    float64
	TY    float64
}

// Identity returns the no-op transform.
func Identity() Similarity {
	return Similarity{Scale: 1}
}

func (s Similarity) Apply(p iface.Point) iface.Point {
	cosT := math.Cos(s.Theta)
	sinT := math.Sin(s.Theta)
	return iface.Point{
		X: s.Scale*(cosT*p.X-sinT*p.Y) + s.TX,
		Y: s.Scale*(sinT*p.X+cosT*p.Y) + s.TY,
	}
}

// Invert returns the inverse transform. Fails when Scale is zero,
// since a zero-scale transform collapses the plane and has no inverse.
func (s Similarity) Invert() (Similarity, error) {
	if s.Scale == 0 {
		return Similarity{}, fmt.Errorf("transform: zero scale is not invertible")
	}
	inv := Similarity{
		Theta: -s.Theta,
		Scale: 1 / s.Scale,
	}
	cosT := math.Cos(inv.Theta)
	sinT := math.Sin(inv.Theta)
	inv.TX = -inv.Scale * (cosT*s.TX - sinT*s.TY)
	inv.TY = -inv.Scale * (sinT*s.TX + cosT*s.TY)
	return inv, nil
}

// EstimateSimilarity computes the closed-form least-squares similarity
// transform aligning src onto dst. The point sets must be equal length
// and already corresponded pair by pair. One pair yields a
// translation-only transform; zero pairs is an input error.
func EstimateSimilarity(src, dst []iface.Point) (Similarity, error) {
	if len(src) != len(dst) {
		return Similarity{}, fmt.Errorf("transform: point set size mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) == 0 {
		return Similarity{}, fmt.Errorf("transform: no point pairs")
	}
	if len(src) == 1 {
		t := Identity()
		t.TX = dst[0].X - src[0].X
		t.TY = dst[0].Y - src[0].Y
		return t, nil
	}

	n := float64(len(src))
	var srcCx, srcCy, dstCx, dstCy float64
	for i := range src {
		srcCx += src[i].X
		srcCy += src[i].Y
		dstCx += dst[i].X
		dstCy += dst[i].Y
	}
	srcCx /= n
	srcCy /= n
	dstCx /= n
	dstCy /= n

	// Rotation from the accumulated cross/dot terms of the
	// centroid-relative coordinates, scale from the same accumulators
	// normalized by the source spread.
	var dotSum, crossSum, srcNorm float64
	for i := range src {
		sx, sy := src[i].X-srcCx, src[i].Y-srcCy
		dx, dy := dst[i].X-dstCx, dst[i].Y-dstCy
		dotSum += sx*dx + sy*dy
		crossSum += sx*dy - sy*dx
		srcNorm += sx*sx + sy*sy
	}

	t := Identity()
	if srcNorm > 0 {
		t.Theta = math.Atan2(crossSum, dotSum)
		t.Scale = math.Hypot(dotSum, crossSum) / srcNorm
	}

	cosT := math.Cos(t.Theta)
	sinT := math.Sin(t.Theta)
	t.TX = dstCx - t.Scale*(cosT*srcCx-sinT*srcCy)
	t.TY = dstCy - t.Scale*(sinT*srcCx+cosT*srcCy)
	return t, nil
}

// Affine is a full 2x3 affine transform, used when enough point pairs
// exist to refine beyond the similarity model.
type Affine struct {
	A, B, TX float64
	C, D, TY float64
}

func (a Affine) Apply(p iface.Point) iface.Point {
	return iface.Point{
		X: a.A*p.X + a.B*p.Y + a.TX,
		Y: a.C*p.X + a.D*p.Y + a.TY,
	}
}

// EstimateAffine solves the overdetermined system for the affine
// transform aligning src onto dst with a QR least-squares fit.
// Requires at least 3 pairs.
func EstimateAffine(src, dst []iface.Point) (Affine, error) {
	n := len(src)
	if n != len(dst) {
		return Affine{}, fmt.Errorf("transform: point set size mismatch: %d vs %d", n, len(dst))
	}
	if n < 3 {
		return Affine{}, fmt.Errorf("transform: affine estimation needs at least 3 pairs, got %d", n)
	}

	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)
	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Affine{}, fmt.Errorf("transform: affine solve: %w", err)
	}
	return Affine{
		A: params.AtVec(0), B: params.AtVec(1), TX: params.AtVec(2),
		C: params.AtVec(3), D: params.AtVec(4), TY: params.AtVec(5),
	}, nil
}

// AlignmentResidual is the mean distance between transformed source
// points and their destination pairs.
func AlignmentResidual(src, dst []iface.Point, apply func(iface.Point) iface.Point) float64 {
	if len(src) == 0 || len(src) != len(dst) {
		return math.Inf(1)
	}
	var total float64
	for i := range src {
		total += apply(src[i]).Distance(dst[i])
	}
	return total / float64(len(src))
}
