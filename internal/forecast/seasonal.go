package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"driftwatch/internal/types"
)

const (
	// defaultFourierOrder is the number of yearly harmonic pairs. Ten pairs
	// resolve seasonal structure down to roughly monthly scale.
	defaultFourierOrder = 10

	// intervalZ is the z-score for the 80% central confidence interval.
	intervalZ = 1.2815515655446004

	// yearDays is the mean tropical year length used for the continuous
	// seasonal phase, so leap years do not drift the harmonics.
	yearDays = 365.25

	// logitEps keeps observed probabilities strictly inside (0, 1) before the
	// logit transform.
	logitEps = 1e-5
)

// seasonalityRefStart is the first day of the canonical non-leap year the
// 365-point yearly curve is sampled against.
var seasonalityRefStart = time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)

// SeasonalEngine is the production Engine. It fits an additive model in logit
// space -- linear trend plus a yearly Fourier expansion, no weekly or daily
// terms -- by ordinary least squares, which both bounds the response to (0, 1)
// (logistic ceiling 1, floor 0; the domain value is a probability) and keeps
// the fit fully deterministic. The confidence band comes from the residual
// standard deviation in the same space.
type SeasonalEngine struct {
	order int
}

// NewSeasonalEngine returns an engine with the default yearly harmonic order.
func NewSeasonalEngine() *SeasonalEngine {
	return &SeasonalEngine{order: defaultFourierOrder}
}

var _ Engine = (*SeasonalEngine)(nil)

// Train fits trend and seasonality to the prepared points and derives the
// persisted curves. The first training date anchors the time axis.
func (e *SeasonalEngine) Train(points []TrainingPoint) (*TrainResult, error) {
	cols := 2 + 2*e.order
	if len(points) <= cols {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "too few points for seasonal fit", nil)
	}

	epoch := points[0].Date

	a := mat.NewDense(len(points), cols, nil)
	y := mat.NewVecDense(len(points), nil)
	for i, p := range points {
		e.setFeatures(a.RawRowView(i), daysSince(epoch, p.Date))
		y.SetVec(i, logit(p.Value))
	}

	var qr mat.QR
	qr.Factorize(a)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "seasonal least-squares solve failed", err)
	}

	w := &Weights{
		Version:      weightsVersion,
		Epoch:        epoch,
		Intercept:    beta.AtVec(0),
		Slope:        beta.AtVec(1),
		FourierOrder: e.order,
		Seasonal:     make([]float64, 2*e.order),
	}
	for i := range w.Seasonal {
		w.Seasonal[i] = beta.AtVec(2 + i)
	}

	// Residual spread in logit space drives the confidence band width.
	residuals := make([]float64, len(points))
	for i, p := range points {
		residuals[i] = logit(p.Value) - latent(w, daysSince(epoch, p.Date))
	}
	w.Sigma = stat.StdDev(residuals, nil)

	blob, err := EncodeWeights(w)
	if err != nil {
		return nil, err
	}

	// In-sample trend curve on the response scale, aligned to training dates.
	trend := make([]float64, len(points))
	for i, p := range points {
		trend[i] = sigmoid(w.Intercept + w.Slope*yearsSince(epoch, p.Date))
	}

	// Yearly seasonality sampled over the canonical non-leap year, exported
	// in the model's additive (logit) space.
	seasonality := make([]float64, types.SeasonalityCurveLen)
	for i := range seasonality {
		d := seasonalityRefStart.AddDate(0, 0, i)
		seasonality[i] = seasonalComponent(w, daysSince(epoch, d))
	}

	return &TrainResult{
		Weights:           blob,
		Trend:             trend,
		YearlySeasonality: seasonality,
	}, nil
}

// Predict evaluates the fitted curve at the given dates. Deterministic for a
// fixed weight blob.
func (e *SeasonalEngine) Predict(weights []byte, dates []time.Time) ([]Forecast, error) {
	w, err := DecodeWeights(weights)
	if err != nil {
		return nil, err
	}

	band := intervalZ * w.Sigma
	out := make([]Forecast, len(dates))
	for i, d := range dates {
		d = types.DateOnly(d)
		mu := latent(w, daysSince(w.Epoch, d))
		out[i] = Forecast{
			Date:      d,
			Predicted: sigmoid(mu),
			Lower:     sigmoid(mu - band),
			Upper:     sigmoid(mu + band),
		}
	}
	return out, nil
}

// setFeatures fills one design-matrix row for elapsed days t:
// [1, years, cos/sin pairs for each yearly harmonic].
func (e *SeasonalEngine) setFeatures(row []float64, t float64) {
	row[0] = 1
	row[1] = t / yearDays
	for k := 1; k <= e.order; k++ {
		arg := 2 * math.Pi * float64(k) * t / yearDays
		row[2*k] = math.Cos(arg)
		row[2*k+1] = math.Sin(arg)
	}
}

// latent evaluates trend plus seasonality in logit space.
func latent(w *Weights, t float64) float64 {
	return w.Intercept + w.Slope*t/yearDays + seasonalComponent(w, t)
}

// seasonalComponent evaluates the yearly Fourier expansion at elapsed days t.
func seasonalComponent(w *Weights, t float64) float64 {
	var s float64
	for k := 1; k <= w.FourierOrder; k++ {
		arg := 2 * math.Pi * float64(k) * t / yearDays
		s += w.Seasonal[2*(k-1)]*math.Cos(arg) + w.Seasonal[2*(k-1)+1]*math.Sin(arg)
	}
	return s
}

func daysSince(epoch, d time.Time) float64 {
	return d.Sub(epoch).Hours() / 24
}

func yearsSince(epoch, d time.Time) float64 {
	return daysSince(epoch, d) / yearDays
}

func logit(v float64) float64 {
	v = math.Min(math.Max(v, logitEps), 1-logitEps)
	return math.Log(v / (1 - v))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
