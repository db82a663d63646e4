package benchmark

import (
	"fmt"
	"testing"

	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/internal/report"
)

// BenchmarkCompetitiveReport measures full competitive-report generation at
// various set sizes.
func BenchmarkCompetitiveReport(b *testing.B) {
	sizes := []int{10, 100, 1000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("n_%d", n), func(b *testing.B) {
			set := makeSet(n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				text, err := report.Competitive(set)
				if err != nil {
					b.Fatal(err)
				}
				_ = text
			}
		})
	}
}

// BenchmarkActivityReport measures single-community report generation.
func BenchmarkActivityReport(b *testing.B) {
	set := record.Set{record.New("Solo", "", 250, 750, 1000)}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		text, err := report.Activity(set)
		if err != nil {
			b.Fatal(err)
		}
		_ = text
	}
}

// BenchmarkChartSeries measures projecting the numeric series for a large
// competitive set.
func BenchmarkChartSeries(b *testing.B) {
	set := makeSet(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		series := report.ChartSeries(set)
		_ = series
	}
}
