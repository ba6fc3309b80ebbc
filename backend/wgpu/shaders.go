// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import _ "embed"

// Embedded WGSL shader sources, one compute entry point per file.
// Anything iterative runs as one pass per item instead of a shader
// loop; see the pass plumbing in device.go.

//go:embed shaders/bilateral_accum.wgsl
var bilateralAccumShaderSource string

//go:embed shaders/bilateral_resolve.wgsl
var bilateralResolveShaderSource string

//go:embed shaders/parallax.wgsl
var parallaxShaderSource string

//go:embed shaders/pom_begin.wgsl
var pomBeginShaderSource string

//go:embed shaders/pom_step.wgsl
var pomStepShaderSource string

//go:embed shaders/pom_resolve.wgsl
var pomResolveShaderSource string

//go:embed shaders/coc.wgsl
var cocShaderSource string

//go:embed shaders/gather_tap.wgsl
var gatherTapShaderSource string

//go:embed shaders/gather_resolve.wgsl
var gatherResolveShaderSource string

//go:embed shaders/focus_composite.wgsl
var focusCompositeShaderSource string

//go:embed shaders/portal_mask.wgsl
var portalMaskShaderSource string

//go:embed shaders/jfa_seed.wgsl
var jfaSeedShaderSource string

//go:embed shaders/jfa_flood.wgsl
var jfaFloodShaderSource string

//go:embed shaders/jfa_resolve.wgsl
var jfaResolveShaderSource string

//go:embed shaders/portal_composite.wgsl
var portalCompositeShaderSource string
