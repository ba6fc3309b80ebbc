package filter

import (
	"math"
	"math/rand"
	"sync"
)

// Sample is a 2D offset inside the unit disc.
type Sample struct {
	X, Y float32
}

// PoissonDisc returns n well-separated sample points in the unit disc,
// generated with Mitchell's best-candidate algorithm from a fixed seed
// so a given count always yields the same pattern. Depth-of-field
// gathers scale these offsets by the per-pixel circle of confusion.
//
// Patterns are cached per count.
func PoissonDisc(n int) []Sample {
	if n <= 0 {
		return nil
	}
	return defaultDiscCache.get(n)
}

type discCache struct {
	mu    sync.RWMutex
	cache map[int][]Sample
}

var defaultDiscCache = &discCache{cache: make(map[int][]Sample)}

func (c *discCache) get(n int) []Sample {
	c.mu.RLock()
	if pts, ok := c.cache[n]; ok {
		c.mu.RUnlock()
		return pts
	}
	c.mu.RUnlock()

	pts := generateDisc(n)

	c.mu.Lock()
	c.cache[n] = pts
	c.mu.Unlock()
	return pts
}

// generateDisc runs best-candidate sampling: each new point is the
// candidate (of a fixed batch) farthest from all accepted points.
func generateDisc(n int) []Sample {
	const candidates = 24
	rng := rand.New(rand.NewSource(0x9e3779b9))

	pts := make([]Sample, 0, n)
	pts = append(pts, randomInDisc(rng))

	for len(pts) < n {
		var best Sample
		bestDist := -1.0
		for c := 0; c < candidates; c++ {
			cand := randomInDisc(rng)
			d := nearestDist(pts, cand)
			if d > bestDist {
				bestDist = d
				best = cand
			}
		}
		pts = append(pts, best)
	}
	return pts
}

func randomInDisc(rng *rand.Rand) Sample {
	// Uniform over the disc via sqrt radius.
	r := math.Sqrt(rng.Float64())
	theta := rng.Float64() * 2 * math.Pi
	return Sample{
		X: float32(r * math.Cos(theta)),
		Y: float32(r * math.Sin(theta)),
	}
}

func nearestDist(pts []Sample, p Sample) float64 {
	best := math.MaxFloat64
	for _, q := range pts {
		dx := float64(p.X - q.X)
		dy := float64(p.Y - q.Y)
		if d := dx*dx + dy*dy; d < best {
			best = d
		}
	}
	return best
}
