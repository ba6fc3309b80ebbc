// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the GPU effect backend on the wgpu HAL.
//
// # Architecture
//
// Every effect renders as a chain of compute passes recorded into one
// command encoder and submitted once per frame:
//
//	parallax    frame params -> [displace] or [march begin, N stations, resolve]
//	rack focus  [CoC, center tap, N Poisson taps, resolve, composite]
//	portal      statics once: [triangles..., seed, flood..., distance]
//	            per frame:    [composite]
//
// Iterative algorithms run one pass per iteration instead of a shader
// loop: storage writes are visible across pass boundaries within a
// submission, and naga's SPIR-V path miscompiles loops (issue #5, only
// the first iteration executes). Per-iteration parameters are static,
// so their uniforms and bind groups are built once at initialization
// and the per-frame cost is two buffer writes and the encoder.
//
// The depth plane is bilaterally filtered on upload by the same pass
// scheme, then sampled as normalized f32 texels. Intermediate planes
// are byte-quantized at the same points as the CPU backend, so both
// backends produce matching frames within rounding tolerance.
//
// # Registration and Selection
//
// The backend registers itself as "wgpu" on import. Init opens the
// Vulkan HAL, preferring a discrete adapter; when either the HAL or an
// adapter is missing, Init fails with ErrBackendNotAvailable wrapped,
// and the probe in the parent package falls back to the CPU backend.
//
// # External Devices
//
// SetDeviceProvider adopts a device another renderer opened, via the
// HalDevice/HalQueue accessor pair that gpucontext device providers
// expose. Adopted devices are never destroyed by Close.
//
// # Error Handling
//
// A failed submit or fence wait marks the device lost; every later
// submission returns backend.ErrDeviceLost without touching the
// hardware. Device loss is terminal for the backend and its pipelines;
// the caller builds a fresh backend to recover.
package wgpu
