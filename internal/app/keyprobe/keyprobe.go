// Package keyprobe samples a key generator and compares the duplicates it
// sees against the birthday bound for the configured key space.
package keyprobe

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

// Generator is the part of keygen.Generator the probe drives.
type Generator interface {
	Generate() (string, error)
	Length() int
	Alphabet() string
}

// Options for a probe run.
type Options struct {
	Samples int
	// FalsePositiveRate sizes the Bloom filter.
	FalsePositiveRate float64
}

// Report summarises a probe run.
type Report struct {
	Samples  int
	Length   int
	Alphabet int
	// Keyspace is alphabet^length; it overflows to +Inf for very long keys.
	Keyspace float64
	// Duplicates counts samples the filter had already seen, including its
	// false positives.
	Duplicates int
	// ExpectedDuplicates is n(n-1)/2N, the birthday-bound estimate.
	ExpectedDuplicates float64
	// CollisionProbability is the chance of at least one duplicate in Samples draws.
	CollisionProbability float64
	// ExpectedFalsePositives is how many Duplicates the filter may have invented.
	ExpectedFalsePositives float64
}

var ErrBadOptions = errors.New("keyprobe: bad options")

// Run draws opts.Samples keys from gen.
func Run(gen Generator, opts Options) (Report, error) {
	if opts.Samples < 1 {
		return Report{}, fmt.Errorf("%w: samples must be positive, got %d", ErrBadOptions, opts.Samples)
	}
	if opts.FalsePositiveRate <= 0 || opts.FalsePositiveRate >= 1 {
		return Report{}, fmt.Errorf("%w: false positive rate must be in (0,1), got %g", ErrBadOptions, opts.FalsePositiveRate)
	}

	filter := bloom.NewWithEstimates(uint(opts.Samples), opts.FalsePositiveRate)

	r := Report{
		Samples:  opts.Samples,
		Length:   gen.Length(),
		Alphabet: len(gen.Alphabet()),
	}
	r.Keyspace = math.Pow(float64(r.Alphabet), float64(r.Length))

	for i := 0; i < opts.Samples; i++ {
		key, err := gen.Generate()
		if err != nil {
			return r, fmt.Errorf("keyprobe: sample %d: %w", i, err)
		}
		if filter.TestAndAddString(key) {
			r.Duplicates++
		}
	}

	n := float64(opts.Samples)
	pairs := n * (n - 1) / 2
	r.ExpectedDuplicates = pairs / r.Keyspace
	r.CollisionProbability = -math.Expm1(-pairs / r.Keyspace)
	r.ExpectedFalsePositives = n * opts.FalsePositiveRate
	return r, nil
}

// Suspicious reports whether the observed duplicates exceed what the
// birthday bound and the filter's error rate together allow for.
func (r Report) Suspicious() bool {
	allowed := r.ExpectedDuplicates + r.ExpectedFalsePositives
	// Poisson tail: mean plus four standard deviations, at least one.
	limit := allowed + 4*math.Sqrt(allowed)
	return float64(r.Duplicates) > math.Max(limit, 1)
}
