package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"regsim/internal/model"
)

// design is a standardized view of a subset of training rows.
//
// Active columns are centered and scaled to unit population variance, so
// (1/n)·z_jᵀz_j = 1. Constant columns are inactive, stored as zeros, and
// always receive a zero coefficient.
type design struct {
	n, p   int
	cols   [][]float64
	mean   []float64
	scale  []float64
	active []bool
	yMean  float64
	y      []float64
}

func newDesign(rows []model.Row, idx []int, p int) *design {
	n := len(idx)
	d := &design{
		n:      n,
		p:      p,
		cols:   make([][]float64, p),
		mean:   make([]float64, p),
		scale:  make([]float64, p),
		active: make([]bool, p),
		y:      make([]float64, n),
	}
	for i, r := range idx {
		d.y[i] = rows[r].Y
	}
	d.yMean = stat.Mean(d.y, nil)
	floats.AddConst(-d.yMean, d.y)

	for j := 0; j < p; j++ {
		col := make([]float64, n)
		for i, r := range idx {
			col[i] = rows[r].X[j]
		}
		mean, sd := stat.PopMeanStdDev(col, nil)
		d.mean[j] = mean
		d.scale[j] = sd
		if sd > 0 && !math.IsNaN(sd) {
			d.active[j] = true
			floats.AddConst(-mean, col)
			floats.Scale(1/sd, col)
		} else {
			for i := range col {
				col[i] = 0
			}
		}
		d.cols[j] = col
	}
	return d
}

func (d *design) anyActive() bool {
	for _, a := range d.active {
		if a {
			return true
		}
	}
	return false
}

// correlation returns (1/n)·z_jᵀy for every column.
func (d *design) correlation() []float64 {
	out := make([]float64, d.p)
	for j := range out {
		if d.active[j] {
			out[j] = floats.Dot(d.cols[j], d.y) / float64(d.n)
		}
	}
	return out
}

// lambdaMax is the smallest L1 penalty at which every coefficient is zero.
func (d *design) lambdaMax() float64 {
	m := 0.0
	for _, c := range d.correlation() {
		if a := math.Abs(c); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

// unscale maps standardized coefficients back to the original feature scale.
func (d *design) unscale(b []float64) (beta []float64, intercept float64) {
	beta = make([]float64, d.p)
	intercept = d.yMean
	for j := range beta {
		if !d.active[j] {
			continue
		}
		beta[j] = b[j] / d.scale[j]
		intercept -= beta[j] * d.mean[j]
	}
	return beta, intercept
}

func predict(beta []float64, intercept float64, x []float64) float64 {
	return intercept + floats.Dot(beta, x)
}
