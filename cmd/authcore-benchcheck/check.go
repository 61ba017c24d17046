package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// tracked lists the engine benchmarks and units compared between runs.
var tracked = map[string][]string{
	"BenchmarkValidateAccess":       {"ns/op", "allocs/op"},
	"BenchmarkRefreshToken":         {"ns/op", "allocs/op"},
	"BenchmarkRefreshTokenRotating": {"ns/op"},
	"BenchmarkLogin":                {"ns/op"},
	"BenchmarkSignup":               {"ns/op"},
}

// samples maps benchmark name to unit to every observed value.
type samples map[string]map[string][]float64

type comparison struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
}

func (c comparison) Delta() float64 {
	return (c.Candidate - c.Baseline) / c.Baseline
}

// parseBench reads `go test -bench` output. Lines for untracked benchmarks
// and non-numeric fields are skipped.
func parseBench(r io.Reader) (samples, error) {
	out := samples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := stripProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, sc.Err()
}

// compare returns the median comparisons in a stable order, and a problem
// line for every missing sample or regression above threshold.
func compare(baseline, candidate samples, threshold float64) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		rows     []comparison
		problems []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			b, c := baseline[name][unit], candidate[name][unit]
			if len(b) == 0 || len(c) == 0 {
				problems = append(problems, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}
			row := comparison{Benchmark: name, Unit: unit, Baseline: median(b), Candidate: median(c)}
			if row.Baseline <= 0 {
				// allocs/op of zero cannot regress by a ratio; any allocation is a regression.
				if row.Candidate > 0 {
					problems = append(problems, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, row.Candidate))
				}
				continue
			}
			rows = append(rows, row)
			if d := row.Delta(); d > threshold {
				problems = append(problems, fmt.Sprintf("%s %s regressed by %+.2f%% (limit %+.2f%%)", name, unit, d*100, threshold*100))
			}
		}
	}
	return rows, problems
}

func stripProcs(raw string) string {
	if i := strings.LastIndexByte(raw, '-'); i > 0 {
		if _, err := strconv.Atoi(raw[i+1:]); err == nil {
			return raw[:i]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	v := append([]float64(nil), values...)
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}
