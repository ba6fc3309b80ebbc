// Package focus drives the focal depth of the rack focus effect.
//
// Pointer, scroll and API input pick targets through a mode gated
// Driver; a critically damped Spring turns targets into a smooth,
// deterministic focal depth trajectory sampled once per display tick.
package focus
