// Package depth provisions per-pixel depth maps for the effect
// pipelines.
//
// Two paths serve the same Reader contract: an Interpolator blending
// precomputed frame sets by query time, and an Estimator publishing
// asynchronous model inference results through a double buffer. Both
// hand out tightly packed byte planes where 255 is nearest.
package depth
