package patchstar

import "math"

// RawPosition is a position in device units (micrometre-resolution integer
// counts). This is the only representation the protocol driver exchanges
// with the controller.
type RawPosition [3]int

// Position is a physical position in metres.
type Position [3]float64

// Scale converts between raw device units and metres, per axis.
type Scale [3]float64

// DefaultScale is the PatchStar factory scale: 1e-7 metres per device unit.
var DefaultScale = Scale{1e-7, 1e-7, 1e-7}

// Physical converts a raw device position to metres.
func (s Scale) Physical(raw RawPosition) Position {
	var pos Position
	for i := range raw {
		pos[i] = float64(raw[i]) * s[i]
	}
	return pos
}

// Raw converts a physical position to device units, rounding to the nearest
// count. Rounding (rather than truncation) keeps the raw → physical → raw
// round trip exact despite float division error.
func (s Scale) Raw(pos Position) RawPosition {
	var raw RawPosition
	for i := range pos {
		raw[i] = int(math.Round(pos[i] / s[i]))
	}
	return raw
}

// DistanceTo returns the Euclidean distance between two positions in metres.
func (p Position) DistanceTo(q Position) float64 {
	var sum float64
	for i := range p {
		d := p[i] - q[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
