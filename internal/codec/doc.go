// Package codec implements the sample-format and sample-rate conversions
// between the 8 kHz mu-law telephony leg and the 24 kHz PCM-16 realtime leg:
// G.711 mu-law companding, 3x linear-interpolation upsampling, and 3x
// decimation with an anti-aliasing FIR filter.
package codec
