package feature

// Vector is the numeric summary of one job's truncated signal. It is built
// once per job and shared read-only by every classifier worker.
type Vector struct {
	Names  []string  `json:"names" msgpack:"names"`
	Values []float64 `json:"values" msgpack:"values"`
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.Values) }

// Lookup returns the value of the named feature.
func (v Vector) Lookup(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name && i < len(v.Values) {
			return v.Values[i], true
		}
	}
	return 0, false
}
