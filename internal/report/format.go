package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// groupThousands renders n with comma separators (12345 -> "12,345").
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// percent2 renders a percentage with two decimal places and a % sign.
func percent2(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

// mean returns the arithmetic mean of values, or 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median returns the middle value of values (the mean of the two middle
// values for even counts), or 0 for an empty slice.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// table renders rows as fixed-width columns, left-aligning the first column
// and right-aligning the rest. The first row is treated as the header.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	var b strings.Builder
	for ri, row := range rows {
		if ri > 0 {
			b.WriteByte('\n')
		}
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == 0 {
				fmt.Fprintf(&b, "%-*s", widths[i], cell)
			} else {
				fmt.Fprintf(&b, "%*s", widths[i], cell)
			}
		}
	}
	return b.String()
}

// rank1 renders a tie-averaged rank: whole ranks without a decimal point,
// averaged ties with one ("3", "2.5").
func rank1(rank float64) string {
	if rank == float64(int(rank)) {
		return strconv.Itoa(int(rank))
	}
	return strconv.FormatFloat(rank, 'f', 1, 64)
}
