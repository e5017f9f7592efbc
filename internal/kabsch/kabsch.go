// Package kabsch solves for the rotation that best maps one centred point
// set onto another.
//
// Both inputs must already have their centroids subtracted; the solver does
// not re-centre them. Collinear or coincident inputs do not fail, the result
// is simply whichever rotation the SVD settles on.
package kabsch

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
)

var (
	ErrEmptySet       = errors.New("kabsch: point sets are empty")
	ErrLengthMismatch = errors.New("kabsch: point sets differ in length")
	ErrFactorization  = errors.New("kabsch: SVD failed to converge")
)

// Solver implements the closed-form optimal rotation (Kabsch) via SVD.
type Solver struct{}

// Solve returns the unit rotation R minimising Σ‖R·p[i] − q[i]‖².
func (Solver) Solve(p, q []r3.Vec) (quat.Number, error) {
	if len(p) == 0 {
		return geom.Identity, ErrEmptySet
	}
	if len(p) != len(q) {
		return geom.Identity, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(p), len(q))
	}

	// Cross-covariance H = Σ p qᵀ (3x3).
	h := mat.NewDense(3, 3, nil)
	for i := range p {
		a := [3]float64{p[i].X, p[i].Y, p[i].Z}
		b := [3]float64{q[i].X, q[i].Y, q[i].Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+a[r]*b[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return geom.Identity, ErrFactorization
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Reflection correction: R = V · diag(1, 1, d) · Uᵀ.
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1
	}
	corr := mat.NewDiagDense(3, []float64{1, 1, d})
	var vc, rot mat.Dense
	vc.Mul(&v, corr)
	rot.Mul(&vc, u.T())

	x := r3.Vec{X: rot.At(0, 0), Y: rot.At(1, 0), Z: rot.At(2, 0)}
	y := r3.Vec{X: rot.At(0, 1), Y: rot.At(1, 1), Z: rot.At(2, 1)}
	z := r3.Vec{X: rot.At(0, 2), Y: rot.At(1, 2), Z: rot.At(2, 2)}
	return geom.FromBasis(x, y, z), nil
}
