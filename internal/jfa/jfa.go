// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package jfa computes distance fields with the jump flooding
// algorithm. The portal effect uses the field for rim lighting and
// bevel shading around the silhouette; the CPU backend runs this
// implementation directly and the GPU backend mirrors its pass
// schedule in compute shaders.
package jfa

import "math"

const noSeed = int32(-1)

// Transform holds the ping-pong buffers for repeated runs at a fixed
// size. Buffers are reused across frames.
type Transform struct {
	w, h int
	ping []int32
	pong []int32
}

// NewTransform allocates a transform for w*h grids.
func NewTransform(w, h int) *Transform {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Transform{
		w:    w,
		h:    h,
		ping: make([]int32, w*h),
		pong: make([]int32, w*h),
	}
}

// Size returns the grid dimensions.
func (t *Transform) Size() (w, h int) { return t.w, t.h }

// Steps returns the pass schedule: offsets halving from the largest
// power of two below max(w, h) down to 1, then one refinement pass at
// offset 1. ceil(log2(maxDim)) regular passes cover any displacement
// on power-of-two and non-power-of-two grids alike.
func (t *Transform) Steps() []int {
	maxDim := t.w
	if t.h > maxDim {
		maxDim = t.h
	}
	if maxDim < 2 {
		return []int{1}
	}

	n := int(math.Ceil(math.Log2(float64(maxDim))))
	steps := make([]int, 0, n+1)
	for i := n - 1; i >= 0; i-- {
		steps = append(steps, 1<<i)
	}
	// Extra unit pass cleans up the rare misses of plain jump
	// flooding near seed bisectors.
	steps = append(steps, 1)
	return steps
}

// Distance fills dst with the Euclidean distance, in pixels, from
// each cell to the nearest seed cell (seed[i] != 0). dst and seed
// must hold w*h elements. With no seeds set, every cell gets +Inf.
func (t *Transform) Distance(dst []float32, seed []byte) {
	n := t.w * t.h
	if len(dst) < n || len(seed) < n {
		return
	}

	cur, next := t.ping, t.pong
	hasSeed := false
	for i := 0; i < n; i++ {
		if seed[i] != 0 {
			cur[i] = int32(i)
			hasSeed = true
		} else {
			cur[i] = noSeed
		}
	}
	if !hasSeed {
		inf := float32(math.Inf(1))
		for i := 0; i < n; i++ {
			dst[i] = inf
		}
		return
	}

	for _, step := range t.Steps() {
		t.flood(cur, next, step)
		cur, next = next, cur
	}

	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			i := y*t.w + x
			s := cur[i]
			sx := int(s) % t.w
			sy := int(s) / t.w
			dx := float64(x - sx)
			dy := float64(y - sy)
			dst[i] = float32(math.Sqrt(dx*dx + dy*dy))
		}
	}
}

// flood runs one jump-flood pass at the given offset: every cell
// examines itself and its eight neighbors at ±step and keeps the
// closest recorded seed.
func (t *Transform) flood(cur, next []int32, step int) {
	w, h := t.w, t.h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x

			best := cur[i]
			bestD := int64(math.MaxInt64)
			if best != noSeed {
				bestD = seedDist2(best, x, y, w)
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy*step
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx := x + dx*step
					if nx < 0 || nx >= w {
						continue
					}
					cand := cur[ny*w+nx]
					if cand == noSeed {
						continue
					}
					if d := seedDist2(cand, x, y, w); d < bestD {
						bestD = d
						best = cand
					}
				}
			}
			next[i] = best
		}
	}
}

// seedDist2 is the squared distance from (x, y) to the cell encoded
// by seed index s.
func seedDist2(s int32, x, y, w int) int64 {
	sx := int(s) % w
	sy := int(s) / w
	dx := int64(x - sx)
	dy := int64(y - sy)
	return dx*dx + dy*dy
}

// EdgeSeeds marks the boundary cells of mask in dst: cells that are
// inside the mask (nonzero) with at least one 4-neighbor outside, or
// lying on the grid border. Both slices must hold w*h bytes.
func EdgeSeeds(dst, mask []byte, w, h int) {
	n := w * h
	if len(dst) < n || len(mask) < n {
		return
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if mask[i] == 0 {
				dst[i] = 0
				continue
			}
			edge := x == 0 || y == 0 || x == w-1 || y == h-1 ||
				mask[i-1] == 0 || mask[i+1] == 0 ||
				mask[i-w] == 0 || mask[i+w] == 0
			if edge {
				dst[i] = 255
			} else {
				dst[i] = 0
			}
		}
	}
}
