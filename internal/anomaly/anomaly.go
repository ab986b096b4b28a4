// Package anomaly computes the signed normalized anomaly degree of an
// observation relative to its predicted confidence band.
//
// The degree is a pure function of (value, lower, upper). The observations
// table persists it as a cached column for query performance, but the stored
// value is never authoritative: every write path that changes any input
// recomputes it through Degree.
package anomaly

// Degree maps an observed value and its predicted band to a signed anomaly
// degree in [-1, 1]. It is nil exactly when predicted is nil: an observation
// with no computed prediction has an undefined degree, while a null value or
// band against an existing prediction degrades to "no anomaly".
//
// Rules, evaluated in order, first match wins:
//  1. predicted absent           -> nil
//  2. value == 0:
//     upper < 0                  -> +1 (band entirely negative)
//     lower > 0                  -> -1 (band entirely positive)
//     otherwise                  -> 0
//  3. value > upper              -> (value - upper) / value
//  4. value < lower              -> (value - lower) / value
//  5. within band                -> 0
func Degree(value, predicted, lower, upper *float64) *float64 {
	if predicted == nil {
		return nil
	}

	degree := 0.0
	switch {
	case value == nil:
		// No measurement to compare; comparisons below are vacuous.
	case *value == 0:
		switch {
		case upper != nil && *upper < 0:
			degree = 1.0
		case lower != nil && *lower > 0:
			degree = -1.0
		}
	case upper != nil && *value > *upper:
		degree = (*value - *upper) / *value
	case lower != nil && *value < *lower:
		degree = (*value - *lower) / *value
	}

	return &degree
}
