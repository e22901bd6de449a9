package master

import "math/rand"

// randIntn picks a uniformly random index in [0, n), grounded on the
// teacher's util.Sample/ArraySet.RandomPick.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.Intn(n)
}
