package vector

import (
	"cmp"
	"slices"
)

// Dot returns the dot product of a and b, which must have equal length.
// For L2-normalized vectors this is their cosine similarity.
func Dot(a, b []float32) float32 {
	b = b[:len(a)]
	var sum float32
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}

// topK returns the k highest-scoring results of s in descending order.
// s is reordered in place. Only the selected prefix is fully sorted.
func topK(s []Result, k int) []Result {
	if k < len(s) {
		selectTop(s, k)
		s = s[:k]
	}
	slices.SortFunc(s, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return s
}

// selectTop partially orders s so that s[:k] holds its k highest scores,
// in any order. Requires 0 < k < len(s).
func selectTop(s []Result, k int) {
	target := k - 1
	lo, hi := 0, len(s)-1
	for lo < hi {
		lt, gt := partition(s, lo, hi)
		switch {
		case target < lt:
			hi = lt - 1
		case target > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

// partition does a three-way split of s[lo:hi+1] around the middle element's score:
// afterwards s[lo:lt] scores above the pivot, s[lt:gt+1] equal it, s[gt+1:hi+1] below.
func partition(s []Result, lo, hi int) (lt, gt int) {
	pivot := s[lo+(hi-lo)/2].Score
	lt, gt = lo, hi
	for i := lo; i <= gt; {
		switch {
		case s[i].Score > pivot:
			s[lt], s[i] = s[i], s[lt]
			lt++
			i++
		case s[i].Score < pivot:
			s[i], s[gt] = s[gt], s[i]
			gt--
		default:
			i++
		}
	}
	return lt, gt
}
