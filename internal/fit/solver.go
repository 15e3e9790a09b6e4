package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// solver computes standardized coefficient vectors along a decreasing
// penalty path for one design.
type solver interface {
	// lambdaMax converts the L1 entry penalty of the design into the top of
	// this solver's grid.
	lambdaMax(l1Max float64) float64
	// gridRatio is the ratio between the smallest and largest grid penalty.
	gridRatio(minRatio float64) float64
	path(d *design, lambdas []float64) ([][]float64, error)
}

// ridgeAlpha mirrors the elastic-net convention of computing the ridge entry
// penalty as if alpha were 0.001.
const ridgeAlpha = 0.001

// lasso minimizes (1/2n)‖y − Zb‖² + λ‖b‖₁ by cyclic coordinate descent with
// warm starts along the path.
type lasso struct {
	maxIter int
	tol     float64
}

func (lasso) lambdaMax(l1Max float64) float64     { return l1Max }
func (lasso) gridRatio(minRatio float64) float64 { return minRatio }

func (s lasso) path(d *design, lambdas []float64) ([][]float64, error) {
	b := make([]float64, d.p)
	r := make([]float64, d.n)
	copy(r, d.y)
	n := float64(d.n)

	out := make([][]float64, len(lambdas))
	for k, lam := range lambdas {
		converged := false
		for iter := 0; iter < s.maxIter; iter++ {
			maxDelta := 0.0
			for j := 0; j < d.p; j++ {
				if !d.active[j] {
					continue
				}
				rho := floats.Dot(d.cols[j], r)/n + b[j]
				nb := softThreshold(rho, lam)
				delta := nb - b[j]
				if delta == 0 {
					continue
				}
				floats.AddScaled(r, -delta, d.cols[j])
				b[j] = nb
				if a := math.Abs(delta); a > maxDelta {
					maxDelta = a
				}
			}
			if maxDelta < s.tol {
				converged = true
				break
			}
		}
		for _, v := range b {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("coordinate descent diverged at lambda=%g", lam)
			}
		}
		if !converged {
			return nil, fmt.Errorf("coordinate descent did not converge at lambda=%g within %d iterations", lam, s.maxIter)
		}
		out[k] = append([]float64(nil), b...)
	}
	return out, nil
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// ridge solves (ZᵀZ/n + λI) b = Zᵀy/n by Cholesky factorization per penalty.
type ridge struct{}

func (ridge) lambdaMax(l1Max float64) float64     { return l1Max / ridgeAlpha }
func (ridge) gridRatio(minRatio float64) float64 { return minRatio * ridgeAlpha }

func (ridge) path(d *design, lambdas []float64) ([][]float64, error) {
	z := mat.NewDense(d.n, d.p, nil)
	for j, col := range d.cols {
		z.SetCol(j, col)
	}
	n := float64(d.n)
	gram := mat.NewSymDense(d.p, nil)
	gram.SymOuterK(1/n, z.T())
	rhs := mat.NewVecDense(d.p, d.correlation())

	out := make([][]float64, len(lambdas))
	for k, lam := range lambdas {
		a := mat.NewSymDense(d.p, nil)
		a.CopySym(gram)
		for j := 0; j < d.p; j++ {
			a.SetSym(j, j, a.At(j, j)+lam)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			return nil, fmt.Errorf("normal equations are not positive definite at lambda=%g", lam)
		}
		var b mat.VecDense
		if err := chol.SolveVecTo(&b, rhs); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return nil, fmt.Errorf("solving normal equations at lambda=%g: %w", lam, err)
			}
		}
		coef := make([]float64, d.p)
		for j := range coef {
			if d.active[j] {
				coef[j] = b.AtVec(j)
			}
		}
		out[k] = coef
	}
	return out, nil
}
