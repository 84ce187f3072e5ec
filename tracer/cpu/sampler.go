package cpu

import (
	"github.com/achilleasa/vega/types"
)

// Fractional parts of the square roots of the first 32 primes scaled to the
// full uint32 range. Each value serves as the step of one dimension of the
// additive recurrence low-discrepancy sequence below.
var ldsPrimes = [32]uint32{
	0x6a09e667, 0xbb67ae84, 0x3c6ef372, 0xa54ff539,
	0x510e527f, 0x9b05688a, 0x1f83d9ab, 0x5be0cd18,
	0xcbbb9d5c, 0x629a2929, 0x91590159, 0x452fecd8,
	0x67332667, 0x8eb44a86, 0xdb0c2e0b, 0x47b5481d,
	0xae5f9155, 0xcf6c85d1, 0x2f73477d, 0x6d1826ca,
	0x8b43d455, 0xe360b595, 0x1c456002, 0x6f196330,
	0xd94ebeaf, 0x9cc4a611, 0x261dc1f2, 0x5815a7bd,
	0x70b7ed67, 0xa1513c68, 0x44f93634, 0x720dcdfc,
}

// Hash an input value using the PCG construction.
func pcgHash(input uint32) uint32 {
	state := input*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// Evaluate dimension d of the low-discrepancy sequence at index n. The uint32
// multiplication wraps which keeps only the fractional part of n*sqrt(prime).
// The offset applies a per-pixel rotation to the sequence so that neighboring
// pixels do not sample correlated points. Dimensions wrap past 31.
func lds(n, d, offset uint32) float32 {
	return float32(ldsPrimes[d&31]*(n+offset)) * (1.0 / 4294967296.0)
}

// A low-discrepancy sample generator. Each generated value consumes one
// sequence dimension so a single path never reuses a dimension.
type sampler struct {
	n         uint32
	offset    uint32
	dimension uint32
}

// Create a sample generator for one sample of one pixel. Generators seeded
// with the same arguments yield identical sequences.
func newSampler(pixelIndex, sampleIndex, seed uint32) sampler {
	return sampler{
		n:      sampleIndex,
		offset: pcgHash(pixelIndex ^ seed),
	}
}

// Generate a sample in [0, 1).
func (s *sampler) gen1() float32 {
	s.dimension++
	return lds(s.n, s.dimension, s.offset)
}

// Generate a 2 component sample in [0, 1).
func (s *sampler) gen2() types.Vec2 {
	return types.XY(s.gen1(), s.gen1())
}

// Generate a 3 component sample in [0, 1).
func (s *sampler) gen3() types.Vec3 {
	return types.XYZ(s.gen1(), s.gen1(), s.gen1())
}
