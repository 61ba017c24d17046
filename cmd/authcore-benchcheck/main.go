// Command authcore-benchcheck compares two `go test -bench` outputs of the
// root package and exits non-zero when a tracked engine benchmark regressed
// past the threshold.
//
//	go test -run '^$' -bench . -count 6 . > new.txt
//	authcore-benchcheck -baseline old.txt -candidate new.txt
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	var (
		baselinePath  = flag.String("baseline", "", "baseline benchmark output")
		candidatePath = flag.String("candidate", "", "candidate benchmark output")
		threshold     = flag.Float64("threshold", 0.30, "maximum allowed regression ratio (0.30 = +30%)")
	)
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if *threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseFile(*candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows, problems := compare(baseline, candidate, *threshold)
	fmt.Printf("%-30s %-10s %14s %14s %9s\n", "benchmark", "unit", "baseline", "candidate", "delta")
	for _, r := range rows {
		fmt.Printf("%-30s %-10s %14.1f %14.1f %+8.2f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.Delta()*100)
	}

	if len(problems) > 0 {
		fmt.Fprintln(os.Stderr, "benchmark check failed:")
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		os.Exit(1)
	}
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBench(f)
}
