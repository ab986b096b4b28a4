package forecast

import (
	"encoding/json"
	"time"

	"github.com/klauspost/compress/zstd"

	"driftwatch/internal/types"
)

// weightsVersion guards against decoding blobs written by an incompatible
// model formulation. Bump whenever the Weights layout or feature construction
// changes.
const weightsVersion = 1

// Weights is the portable serialized state of a fitted seasonal model.
// Everything Predict needs is here; the blob is self-contained so a predictor
// row can be moved between databases or replayed offline.
type Weights struct {
	Version int `json:"version"`

	// Epoch anchors the continuous time axis: features are computed from
	// days elapsed since Epoch. It is the first training date.
	Epoch time.Time `json:"epoch"`

	// Trend coefficients in logit space.
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`

	// Seasonal holds interleaved cos/sin coefficients for the yearly Fourier
	// expansion, 2*FourierOrder entries.
	FourierOrder int       `json:"fourier_order"`
	Seasonal     []float64 `json:"seasonal"`

	// Sigma is the residual standard deviation in logit space; the
	// confidence band is Predicted +/- z*Sigma before the inverse transform.
	Sigma float64 `json:"sigma"`
}

// EncodeWeights serializes weights to a zstd-compressed JSON blob.
func EncodeWeights(w *Weights) ([]byte, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "failed to marshal model weights", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "failed to create weight encoder", err)
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

// DecodeWeights deserializes a blob produced by EncodeWeights.
func DecodeWeights(blob []byte) (*Weights, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "failed to create weight decoder", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "failed to decompress model weights", err)
	}

	var w Weights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "failed to unmarshal model weights", err)
	}
	if w.Version != weightsVersion {
		return nil, types.NewAppError(types.ErrCodeInternalForecast, "unsupported model weights version", nil)
	}
	return &w, nil
}
