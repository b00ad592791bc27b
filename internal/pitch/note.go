package pitch

import (
	"fmt"
	"math"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// HzToMIDI converts a frequency to a fractional MIDI note number (A4 = 69).
func HzToMIDI(hz float64) float64 {
	return 69 + 12*math.Log2(hz/440.0)
}

// NoteName returns the nearest equal-tempered note for hz, e.g. "A4".
// Non-positive frequencies have no name.
func NoteName(hz float64) string {
	if hz <= 0 || math.IsInf(hz, 0) || math.IsNaN(hz) {
		return ""
	}
	m := int(math.Round(HzToMIDI(hz)))
	n := ((m % 12) + 12) % 12
	oct := int(math.Floor(float64(m)/12)) - 1
	return fmt.Sprintf("%s%d", noteNames[n], oct)
}
