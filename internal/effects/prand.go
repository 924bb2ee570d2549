package effects

import "math"

// pseudoRand maps an integer seed to a value in [0,1). It is a pure
// function, so any draw keyed on the same seed reproduces exactly — sparkle
// positions stay put within their time window and glitch lines are stable
// for a given frame, which keeps exported loops reproducible.
func pseudoRand(seed int) float64 {
	x := math.Sin(float64(seed)) * 43758.5453123
	return x - math.Floor(x)
}

// pseudoRandRange scales a seeded draw into [0,n).
func pseudoRandRange(seed, n int) int {
	if n <= 0 {
		return 0
	}
	v := int(pseudoRand(seed) * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}
