// Package estimator predicts token wait times.
//
// Until enough service history exists, or whenever a queue has no active
// server, the estimate is a deterministic heuristic: queue length times a
// fixed number of minutes per token. Once trained, a linear regression over
// queue length, active servers, hour of day and day of week is used. The
// fitted model is an immutable snapshot swapped atomically on retrain, so
// predictions never observe a partially updated model.
package estimator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// HeuristicVersion is the model version reported by fallback estimates.
const HeuristicVersion = "heuristic"

// ErrSingular is returned when the training data cannot be fitted.
var ErrSingular = errors.New("estimator: normal equations are singular")

// Features are the inputs of a prediction.
type Features struct {
	QueueLength   int `json:"queue_length"`
	ActiveServers int `json:"active_servers"`
	HourOfDay     int `json:"hour_of_day"`
	DayOfWeek     int `json:"day_of_week"`
}

func (f Features) vector() [numFeatures]float64 {
	return [numFeatures]float64{
		float64(f.QueueLength),
		float64(f.ActiveServers),
		float64(f.HourOfDay),
		float64(f.DayOfWeek),
	}
}

// Observation is one measured wait with the features seen at admission.
type Observation struct {
	Features
	WaitMinutes float64 `json:"wait_minutes"`
}

func (o Observation) qualifies() bool {
	return o.WaitMinutes >= 0 && !math.IsNaN(o.WaitMinutes) &&
		o.QueueLength >= 0 && o.ActiveServers >= 0 &&
		o.HourOfDay >= 0 && o.HourOfDay <= 23 &&
		o.DayOfWeek >= 0 && o.DayOfWeek <= 6
}

// Prediction is a wait estimate. Minutes is always at least 1.
type Prediction struct {
	Minutes      int                `json:"minutes"`
	Confidence   float64            `json:"confidence"`
	ModelVersion string             `json:"model_version"`
	Factors      map[string]float64 `json:"factors,omitempty"`
}

// Config holds estimator policy constants.
type Config struct {
	// FallbackMinutesPerToken is the heuristic cost of each queued token.
	FallbackMinutesPerToken int

	// MinRecords is the number of qualifying observations needed to fit.
	MinRecords int

	// Ridge is the L2 penalty added to the feature diagonal to keep the
	// normal equations well conditioned.
	Ridge float64
}

// DefaultConfig returns the standard estimator policy.
func DefaultConfig() Config {
	return Config{
		FallbackMinutesPerToken: 5,
		MinRecords:              20,
		Ridge:                   1e-6,
	}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithConfig sets the estimator policy.
func WithConfig(cfg Config) Option {
	return func(e *Estimator) { e.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Estimator) { e.logger = l }
}

// Estimator predicts waits. It is safe for concurrent use; Predict never
// blocks on Train.
type Estimator struct {
	config  Config
	logger  *slog.Logger
	model   atomic.Pointer[Model]
	fits    atomic.Uint64
	nowFunc func() time.Time
}

// New creates an untrained Estimator.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the estimator policy.
func (e *Estimator) Config() Config { return e.config }

// Model returns the current snapshot, or nil when untrained.
func (e *Estimator) Model() *Model { return e.model.Load() }

// Load installs a previously fitted model.
func (e *Estimator) Load(m *Model) { e.model.Store(m) }

// Predict estimates the wait in minutes. It never fails and never
// returns less than one minute.
func (e *Estimator) Predict(queueLength, activeServers, hourOfDay, dayOfWeek int) Prediction {
	f := Features{
		QueueLength:   max(queueLength, 0),
		ActiveServers: activeServers,
		HourOfDay:     hourOfDay,
		DayOfWeek:     dayOfWeek,
	}

	m := e.model.Load()
	if m == nil || activeServers <= 0 {
		return e.fallback(f)
	}

	raw, contributions := m.evaluate(f)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return e.fallback(f)
	}
	contributions["intercept"] = m.Intercept
	return Prediction{
		Minutes:      clampMinutes(raw),
		Confidence:   m.Confidence(),
		ModelVersion: m.Version,
		Factors:      contributions,
	}
}

func (e *Estimator) fallback(f Features) Prediction {
	per := e.config.FallbackMinutesPerToken
	return Prediction{
		Minutes:      max(1, f.QueueLength*per),
		Confidence:   0,
		ModelVersion: HeuristicVersion,
		Factors: map[string]float64{
			"queue_length":      float64(f.QueueLength),
			"active_servers":    float64(f.ActiveServers),
			"minutes_per_token": float64(per),
		},
	}
}

func clampMinutes(v float64) int {
	if v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// TrainResult describes a training run.
type TrainResult struct {
	Trained    bool    `json:"trained"`
	Samples    int     `json:"samples"`
	Discarded  int     `json:"discarded"`
	RSquared   float64 `json:"r_squared"`
	MeanWait   float64 `json:"mean_wait"`
	Version    string  `json:"version,omitempty"`
	SkipReason string  `json:"skip_reason,omitempty"`
}

// Train fits a new model from the full observation history. With fewer
// than MinRecords qualifying observations it leaves the current model in
// place and reports a skip. A failed fit also keeps the current model.
func (e *Estimator) Train(obs []Observation) (TrainResult, error) {
	usable := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.qualifies() {
			usable = append(usable, o)
		}
	}
	res := TrainResult{Samples: len(usable), Discarded: len(obs) - len(usable)}

	if len(usable) < e.config.MinRecords {
		res.SkipReason = fmt.Sprintf("need %d qualifying records, have %d", e.config.MinRecords, len(usable))
		e.logger.Debug("estimator training skipped",
			slog.Int("samples", len(usable)),
			slog.Int("required", e.config.MinRecords),
		)
		return res, nil
	}

	m, err := fit(usable, e.config.Ridge)
	if err != nil {
		return res, fmt.Errorf("estimator: train: %w", err)
	}
	m.Version = fmt.Sprintf("lr-%d", e.fits.Add(1))
	m.TrainedAt = e.nowFunc()
	e.model.Store(m)

	res.Trained = true
	res.RSquared = m.RSquared
	res.MeanWait = m.MeanWait
	res.Version = m.Version
	e.logger.Info("estimator trained",
		slog.String("version", m.Version),
		slog.Int("samples", m.Samples),
		slog.Float64("r_squared", m.RSquared),
	)
	return res, nil
}

// FeaturesAt builds the features for a prediction made at t. Days are
// numbered from Monday = 0.
func FeaturesAt(queueLength, activeServers int, t time.Time) Features {
	return Features{
		QueueLength:   queueLength,
		ActiveServers: activeServers,
		HourOfDay:     t.Hour(),
		DayOfWeek:     (int(t.Weekday()) + 6) % 7,
	}
}

// PredictFeatures is Predict over a Features value.
func (e *Estimator) PredictFeatures(f Features) Prediction {
	return e.Predict(f.QueueLength, f.ActiveServers, f.HourOfDay, f.DayOfWeek)
}
