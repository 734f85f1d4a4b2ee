// Package rules evaluates a user's historical metrics against the criteria
// declared on a dynamic campaign.
package rules

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupported is reported for criteria whose metric the platform does not
// track. Evaluate never returns it; the criterion simply fails.
var ErrUnsupported = errors.New("criterion metric is not supported")

// Kind enumerates the criteria the engine knows how to evaluate.
type Kind int

const (
	MinRating Kind = iota + 1
	MinReservations
	MinComments
	MinAvgSpend
)

var kindNames = map[Kind]string{
	MinRating:       "min_rating",
	MinReservations: "min_reservations",
	MinComments:     "min_comments",
	MinAvgSpend:     "min_avg_spend",
}

// String returns the wire name of the criterion kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Criterion is one threshold a user's metrics must meet.
type Criterion struct {
	Kind      Kind
	Threshold float64
}

// Criteria is the parsed criteria set of a campaign. Items is ordered by Kind.
// Unknown keeps keys that were present in the stored definition but are not a
// known Kind, so they survive a round trip without affecting eligibility.
type Criteria struct {
	Items   []Criterion
	Unknown map[string]float64
}

// ParseCriteria splits a raw criteria mapping into recognised criteria and the
// names of unrecognised keys (sorted).
func ParseCriteria(raw map[string]float64) (Criteria, []string) {
	var c Criteria
	for name, threshold := range raw {
		kind, ok := ParseKind(name)
		if !ok {
			if c.Unknown == nil {
				c.Unknown = make(map[string]float64)
			}
			c.Unknown[name] = threshold
			continue
		}
		c.Items = append(c.Items, Criterion{Kind: kind, Threshold: threshold})
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].Kind < c.Items[j].Kind })
	return c, c.UnknownKeys()
}

// UnknownKeys returns the sorted names of unrecognised criteria.
func (c Criteria) UnknownKeys() []string {
	if len(c.Unknown) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Unknown))
	for k := range c.Unknown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns the criteria in their stored mapping form.
func (c Criteria) Raw() map[string]float64 {
	raw := make(map[string]float64, len(c.Items)+len(c.Unknown))
	for k, v := range c.Unknown {
		raw[k] = v
	}
	for _, item := range c.Items {
		raw[item.Kind.String()] = item.Threshold
	}
	return raw
}

// MarshalJSON encodes the criteria as a flat object.
func (c Criteria) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Raw())
}

// UnmarshalJSON decodes a flat object. A JSON null yields empty criteria.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode criteria: %w", err)
	}
	*c, _ = ParseCriteria(raw)
	return nil
}

// Value stores the criteria as JSON text.
func (c Criteria) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads criteria stored as JSON text. NULL yields empty criteria.
func (c *Criteria) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = Criteria{}
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported criteria column type %T", src)
	}
}

// Metrics is the snapshot of a user's history the criteria are checked against.
type Metrics struct {
	Rating           *float64 `json:"rating,omitempty"`
	ReservationCount int      `json:"reservation_count"`
	CommentCount     int      `json:"comment_count"`
}

// Check evaluates a single criterion.
func Check(m Metrics, c Criterion) (bool, error) {
	switch c.Kind {
	case MinRating:
		return m.Rating != nil && *m.Rating >= c.Threshold, nil
	case MinReservations:
		return float64(m.ReservationCount) >= c.Threshold, nil
	case MinComments:
		return float64(m.CommentCount) >= c.Threshold, nil
	case MinAvgSpend:
		return false, fmt.Errorf("%s: %w", c.Kind, ErrUnsupported)
	default:
		return false, fmt.Errorf("unknown criterion %s", c.Kind)
	}
}

// Evaluate checks every recognised criterion and returns the per-criterion
// outcome keyed by wire name.
func Evaluate(m Metrics, criteria Criteria) Results {
	results := make(Results, len(criteria.Items))
	for _, c := range criteria.Items {
		ok, _ := Check(m, c)
		results[c.Kind.String()] = ok
	}
	return results
}

// Results maps a criterion wire name to whether it passed.
type Results map[string]bool

// Eligible reports whether every evaluated criterion passed. An empty result
// set is eligible.
func (r Results) Eligible() bool {
	for _, ok := range r {
		if !ok {
			return false
		}
	}
	return true
}

// Value stores the results as JSON text.
func (r Results) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]bool(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads results stored as JSON text.
func (r *Results) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = Results{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported results column type %T", src)
	}
	out := Results{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode rule results: %w", err)
	}
	*r = out
	return nil
}
