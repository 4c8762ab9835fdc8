package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Summarize renders samples for display. With fewer than three samples the
// label is the raw list. Otherwise the single minimum and maximum are shown
// as bounds and the bracketed figure is the mean of the remaining samples.
// count is always the untrimmed number of samples.
func Summarize(samples []float64) (label string, count int) {
	count = len(samples)
	if count < 3 {
		parts := make([]string, 0, count)
		for _, v := range samples {
			parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
		}
		return "[" + strings.Join(parts, ", ") + "]", count
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[count-1]
	var sum float64
	for _, v := range sorted[1 : count-1] {
		sum += v
	}
	mean := sum / float64(count-2)

	return fmt.Sprintf("%f ... [%f] ... %f", lo, mean, hi), count
}
