// ABOUTME: Pairwise correlation degree between two signal vectors
// ABOUTME: Mean absolute element-wise product over the shared prefix

package correlation

import "math"

// NotifyThreshold is the degree a measurement must exceed to notify.
const NotifyThreshold = 0.7

// Degree returns the mean of |a[i]*b[i]| for i < min(len(a), len(b)), or 0
// when either vector is empty.
func Degree(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sum += math.Abs(a[i] * b[i])
	}
	return sum / float64(n)
}

// ShouldNotify reports whether degree is strictly above NotifyThreshold.
func ShouldNotify(degree float64) bool {
	return degree > NotifyThreshold
}
