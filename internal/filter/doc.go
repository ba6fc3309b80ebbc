// Package filter implements the image-space kernels shared by the
// effect backends: edge-preserving bilateral smoothing for depth
// planes, separable Gaussian blur for highlight bloom, and
// Poisson-disc sample patterns for depth-of-field gathers.
package filter
