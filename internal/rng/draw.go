package rng

// Pick selects an index with probability proportional to its weight.
// Negative weights count as zero. It returns -1 when no weight is positive.
func Pick(src Source, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	target := src.Float64() * total

	var cumulative float64
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		last = i
		if target < cumulative {
			return i
		}
	}

	// Floating point rounding can leave target == total.
	return last
}

// Shuffle performs a Fisher-Yates shuffle over n elements.
func Shuffle(src Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		swap(i, j)
	}
}

// Sample draws k distinct indices from [0, n) by sequential removal.
// The result keeps draw order.
func Sample(src Source, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}

	out := make([]int, 0, k)
	for len(out) < k {
		idx := src.IntN(len(pool))
		out = append(out, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return out
}
