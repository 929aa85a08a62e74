// Package scandata reduces the raw per-point counters returned by an eye scan into analysis-ready metrics.
//
// A scan sweeps a grid of (x, y) offsets: x is the horizontal (phase) offset in codes, y the vertical
// (voltage) offset in codes. The remote service returns, for each offset, how many bits were sampled and how
// many of them were in error. The reducer turns that stream into:
//
//   - a processed map of Point values keyed by coordinate, with BER = errors / samples; offsets that were never
//     sampled (sample count 0) are left out instead of being reported with BER 0;
//   - a Summary computed once the scan is complete: open area, open percentage and the horizontal/vertical
//     opening measured through the zero-crossing coordinate (0, 0).
//
// Sweep ranges are given as text, as the remote service and its users write them:
//
//	"-0.500 UI to 0.500 UI"   horizontal range in unit intervals
//	"-0.5 to 0.5"             unit defaults to UI
//	"100%"                    vertical range as a share of the full voltage swing
package scandata
