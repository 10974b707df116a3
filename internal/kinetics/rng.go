package kinetics

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// RNG is the pseudo-random generator owned by a single run. It is never
// shared between runs, so a run is reproducible from its seed alone.
type RNG struct {
	seed uint64
	src  *rand.PCG
	r    *rand.Rand
}

func NewRNG(seed uint64) *RNG {
	src := rand.NewPCG(seed, splitmix64(seed))
	return &RNG{seed: seed, src: src, r: rand.New(src)}
}

func (g *RNG) Seed() uint64 { return g.seed }

// Source exposes the underlying source for distributions that draw from it.
func (g *RNG) Source() rand.Source { return g.src }

// Uniform returns a float in [0,1).
func (g *RNG) Uniform() float64 { return g.r.Float64() }

// OpenUniform returns a float in (0,1).
func (g *RNG) OpenUniform() float64 {
	for {
		if u := g.r.Float64(); u > 0 {
			return u
		}
	}
}

// RandomSeed returns a fresh seed for runs that did not configure one.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// DeriveSeed derives the seed of replicate i from a base seed.
func DeriveSeed(base uint64, i int) uint64 {
	return splitmix64(base + uint64(i)*0x9e3779b97f4a7c15)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
