package kinetics

import "math"

// WaitingTime returns the exponentially distributed time to the next reaction,
// -ln(u)/total, for u uniform on (0,1).
func WaitingTime(total, u float64) (float64, error) {
	if !(total > 0) {
		return 0, ErrNoPropensity
	}
	return -math.Log(u) / total, nil
}
