package scorer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// LogisticRegression is an L2-regularized binary classifier over
// standardized features.
type LogisticRegression struct {
	Coef      []float64 `msgpack:"coef"`
	Intercept float64   `msgpack:"intercept"`
	Mean      []float64 `msgpack:"mean"`
	Scale     []float64 `msgpack:"scale"`
}

// standardizer computes per-column mean and population std. Constant
// columns get scale 1 so they standardize to zero.
func standardizer(x [][]float64) (mean, scale []float64) {
	cols := len(x[0])
	mean = make([]float64, cols)
	scale = make([]float64, cols)
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m, s := stat.PopMeanStdDev(col, nil)
		mean[j] = m
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		scale[j] = s
	}
	return mean, scale
}

func (m *LogisticRegression) standardize(x []float64) []float64 {
	z := make([]float64, len(x))
	for j := range x {
		if j < len(m.Mean) {
			z[j] = (x[j] - m.Mean[j]) / m.Scale[j]
		}
	}
	return z
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// softplus is log(1+exp(v)) without overflow
func softplus(v float64) float64 {
	if v > 30 {
		return v
	}
	return math.Log1p(math.Exp(v))
}

// FitLogistic minimizes 0.5*l2*|w|^2 + sum of log-losses. The intercept
// is not penalized. BFGS is tried first, Nelder-Mead second.
func FitLogistic(x [][]float64, y []float64, l2 float64) (*LogisticRegression, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("logistic regression needs matching non-empty x and y, got %d and %d", len(x), len(y))
	}

	model := &LogisticRegression{}
	model.Mean, model.Scale = standardizer(x)
	z := make([][]float64, len(x))
	for i := range x {
		z[i] = model.standardize(x[i])
	}
	cols := len(x[0])

	// params: w[0..cols-1], intercept at w[cols]
	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.5 * l2 * floats.Dot(w[:cols], w[:cols])
			for i := range z {
				margin := floats.Dot(w[:cols], z[i]) + w[cols]
				if y[i] > 0.5 {
					loss += softplus(-margin)
				} else {
					loss += softplus(margin)
				}
			}
			return loss
		},
		Grad: func(grad, w []float64) {
			for j := 0; j < cols; j++ {
				grad[j] = l2 * w[j]
			}
			grad[cols] = 0
			for i := range z {
				residual := sigmoid(floats.Dot(w[:cols], z[i])+w[cols]) - y[i]
				floats.AddScaled(grad[:cols], residual, z[i])
				grad[cols] += residual
			}
		},
	}

	initial := make([]float64, cols+1)
	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("logistic regression failed: %w", err)
		}
	}
	if !converged(result.Status) {
		return nil, fmt.Errorf("logistic regression did not converge: status=%v", result.Status)
	}

	model.Coef = append([]float64(nil), result.X[:cols]...)
	model.Intercept = result.X[cols]
	return model, nil
}

func converged(status optimize.Status) bool {
	return status == optimize.Success || status == optimize.GradientThreshold || status == optimize.FunctionConvergence
}

// Probability returns P(label=1 | x)
func (m *LogisticRegression) Probability(x []float64) float64 {
	z := m.standardize(x)
	return sigmoid(floats.Dot(m.Coef, z) + m.Intercept)
}

// Contributions returns coef*z per feature
func (m *LogisticRegression) Contributions(x []float64) []float64 {
	z := m.standardize(x)
	out := make([]float64, len(z))
	for j := range z {
		out[j] = m.Coef[j] * z[j]
	}
	return out
}
