// SPDX-License-Identifier: MIT
package classifier

import (
	"errors"
	"fmt"
)

// ID names one classifier. The set is closed; every ID has exactly one
// worker in the pool and one key in an aggregate.
type ID uint8

const (
	MoodHappy ID = iota
	MoodSad
	MoodRelaxed
	MoodAggressive
	MoodParty
	MoodElectronic
	MoodAcoustic
	Danceability
	TonalAtonal

	numIDs
)

var idNames = [numIDs]string{
	MoodHappy:      "mood_happy",
	MoodSad:        "mood_sad",
	MoodRelaxed:    "mood_relaxed",
	MoodAggressive: "mood_aggressive",
	MoodParty:      "mood_party",
	MoodElectronic: "mood_electronic",
	MoodAcoustic:   "mood_acoustic",
	Danceability:   "danceability",
	TonalAtonal:    "tonal_atonal",
}

// ErrUnknownClassifier is returned when a name is not in the closed set.
var ErrUnknownClassifier = errors.New("unknown classifier")

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("classifier(%d)", uint8(id))
	}
	return idNames[id]
}

// Valid reports whether id is one of the defined classifiers.
func (id ID) Valid() bool {
	return id < numIDs
}

// MarshalText lets IDs serve as JSON object keys.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClassifier, uint8(id))
	}
	return []byte(idNames[id]), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID resolves a classifier name such as "mood_happy".
func ParseID(name string) (ID, error) {
	for i, n := range idNames {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClassifier, name)
}

// ParseIDs resolves a list of names, preserving order and rejecting duplicates.
func ParseIDs(names []string) ([]ID, error) {
	ids := make([]ID, 0, len(names))
	seen := make(map[ID]bool, len(names))
	for _, name := range names {
		id, err := ParseID(name)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate classifier %q", name)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// All returns every classifier in declaration order.
func All() []ID {
	ids := make([]ID, numIDs)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
