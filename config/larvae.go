package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/vectorsim/simerr"
)

// NumLarvalSubstages is the number of larval instars (L1-L4).
const NumLarvalSubstages = 4

// LarvaeCount is a larval count given either as a single total or as one
// value per instar. Engines only ever see Total.
type LarvaeCount struct {
	total     int
	substages []int
}

// TotalLarvae returns a count given as a total.
func TotalLarvae(n int) LarvaeCount {
	return LarvaeCount{total: n}
}

// SubstageLarvae returns a count given per instar.
func SubstageLarvae(l1, l2, l3, l4 int) LarvaeCount {
	return LarvaeCount{total: l1 + l2 + l3 + l4, substages: []int{l1, l2, l3, l4}}
}

// Total returns the summed larval count.
func (l LarvaeCount) Total() int { return l.total }

// Substages returns the per-instar values if the count was given that way.
func (l LarvaeCount) Substages() ([]int, bool) {
	if l.substages == nil {
		return nil, false
	}
	out := make([]int, len(l.substages))
	copy(out, l.substages)
	return out, true
}

// Validate rejects negative counts.
func (l LarvaeCount) Validate(field string) error {
	if l.substages == nil {
		if l.total < 0 {
			return simerr.Validation(field, l.total, "must be non-negative")
		}
		return nil
	}
	for i, v := range l.substages {
		if v < 0 {
			return simerr.Validation(fmt.Sprintf("%s[%d]", field, i), v, "must be non-negative")
		}
	}
	return nil
}

func (l *LarvaeCount) fromSlice(vals []int) error {
	if len(vals) != NumLarvalSubstages {
		return simerr.Validation("larvae", len(vals), fmt.Sprintf("substage list must have exactly %d values", NumLarvalSubstages))
	}
	*l = SubstageLarvae(vals[0], vals[1], vals[2], vals[3])
	return nil
}

// UnmarshalYAML accepts a scalar total or a four-element sequence.
func (l *LarvaeCount) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("larvae: %w", err)
		}
		*l = TotalLarvae(n)
		return nil
	case yaml.SequenceNode:
		var vals []int
		if err := node.Decode(&vals); err != nil {
			return fmt.Errorf("larvae: %w", err)
		}
		return l.fromSlice(vals)
	default:
		return simerr.Validation("larvae", nil, "must be an integer or a list of integers")
	}
}

// MarshalYAML writes the form the count was given in.
func (l LarvaeCount) MarshalYAML() (any, error) {
	if l.substages != nil {
		return l.substages, nil
	}
	return l.total, nil
}

// UnmarshalJSON mirrors UnmarshalYAML.
func (l *LarvaeCount) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = TotalLarvae(n)
		return nil
	}
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return simerr.Validation("larvae", string(data), "must be an integer or a list of integers")
	}
	return l.fromSlice(vals)
}

// MarshalJSON mirrors MarshalYAML.
func (l LarvaeCount) MarshalJSON() ([]byte, error) {
	if l.substages != nil {
		return json.Marshal(l.substages)
	}
	return json.Marshal(l.total)
}
