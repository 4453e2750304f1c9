package estimator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const numFeatures = 4

var featureNames = [numFeatures]string{"queue_length", "active_servers", "hour_of_day", "day_of_week"}

// Model is a fitted linear regression. It is never mutated after Train
// publishes it.
type Model struct {
	Coefficients [numFeatures]float64 `json:"coefficients"`
	Intercept    float64              `json:"intercept"`
	RSquared     float64              `json:"r_squared"`
	MeanWait     float64              `json:"mean_wait"`
	Samples      int                  `json:"samples"`
	Version      string               `json:"version"`
	TrainedAt    time.Time            `json:"trained_at"`
}

// Confidence is the in-sample R² clamped to [0, 1].
func (m *Model) Confidence() float64 {
	switch {
	case math.IsNaN(m.RSquared) || m.RSquared < 0:
		return 0
	case m.RSquared > 1:
		return 1
	}
	return m.RSquared
}

func (m *Model) evaluate(f Features) (float64, map[string]float64) {
	x := f.vector()
	out := make(map[string]float64, numFeatures+1)
	sum := m.Intercept
	for i, c := range m.Coefficients {
		out[featureNames[i]] = c * x[i]
		sum += c * x[i]
	}
	return sum, out
}

// fit solves (XᵀX + λI)β = Xᵀy with an unpenalised intercept column.
func fit(obs []Observation, ridge float64) (*Model, error) {
	n := len(obs)
	const cols = numFeatures + 1

	data := make([]float64, 0, n*cols)
	ys := make([]float64, n)
	for i, o := range obs {
		v := o.vector()
		data = append(data, 1, v[0], v[1], v[2], v[3])
		ys[i] = o.WaitMinutes
	}
	x := mat.NewDense(n, cols, data)
	y := mat.NewVecDense(n, ys)

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for i := 1; i < cols; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, err
	}

	m := &Model{Intercept: beta.AtVec(0), Samples: n}
	for i := range numFeatures {
		m.Coefficients[i] = beta.AtVec(i + 1)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	m.RSquared = stat.RSquaredFrom(fitted.RawVector().Data, ys, nil)
	m.MeanWait = stat.Mean(ys, nil)
	return m, nil
}
