// Package bench measures datagram round-trip latency between a ping client
// and an echo server built on the endpoint package.
package bench

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stats summarizes a set of round-trip samples.
type Stats struct {
	Samples int
	Worst   time.Duration
	Average time.Duration
	StdDev  time.Duration // sample standard deviation (n-1)
}

// Compute summarizes samples. Average and StdDev are only computed for two
// or more samples.
func Compute(samples []time.Duration) Stats {
	s := Stats{Samples: len(samples)}

	var sum time.Duration
	for _, d := range samples {
		sum += d
		if d > s.Worst {
			s.Worst = d
		}
	}

	if len(samples) < 2 {
		return s
	}

	s.Average = sum / time.Duration(len(samples))

	var sq float64
	for _, d := range samples {
		diff := float64(d - s.Average)
		sq += diff * diff
	}
	s.StdDev = time.Duration(math.Sqrt(sq / float64(len(samples)-1)))

	return s
}

// Format renders the stats as tab-separated microsecond values:
// worst, then average and stdev when available.
func (s Stats) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\t", s.Worst.Microseconds())
	if s.Samples < 2 {
		return b.String()
	}
	fmt.Fprintf(&b, "%d\t%d\t", s.Average.Microseconds(), s.StdDev.Microseconds())
	return b.String()
}

// Header is the column header printed above Format output.
const Header = "worst\tavg\tstdev"
