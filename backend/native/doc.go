// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements the CPU effect backend.
//
// Every pass is a row-parallel loop over byte and float planes, fanned
// out through the shared worker pool. The package mirrors the wgpu
// backend pass for pass: bilateral depth filtering, parallax
// displacement with an optional occlusion march, the three-stage rack
// focus, and the portal composite over a jump-flood distance field.
// Output frames match the GPU backend within rounding tolerance.
//
// The backend registers itself as "native" on import and is always
// available; the probe in the parent package falls back to it when no
// GPU device opens.
package native
