// Package model holds the persisted road-network types shared by every
// roadweaver component: landmark positions, connections between them and the
// road records produced once a connection has been built.
package model

import "fmt"

// BlockPos is a whole-block world coordinate. Y is the vertical axis.
type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p BlockPos) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}

// DistSq returns the squared Euclidean distance between two positions.
func (p BlockPos) DistSq(other BlockPos) int64 {
	dx := int64(p.X - other.X)
	dy := int64(p.Y - other.Y)
	dz := int64(p.Z - other.Z)
	return dx*dx + dy*dy + dz*dz
}

// Less orders positions by X, then Y, then Z.
func (p BlockPos) Less(other BlockPos) bool {
	if p.X != other.X {
		return p.X < other.X
	}
	if p.Y != other.Y {
		return p.Y < other.Y
	}
	return p.Z < other.Z
}

// Status is the lifecycle state of a Connection.
type Status int

const (
	Planned Status = iota
	Generating
	Completed
	Failed
)

var statusNames = [...]string{"PLANNED", "GENERATING", "COMPLETED", "FAILED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// MarshalText encodes the status by name so stored worlds stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("model: unknown connection status %q", text)
}

// Connection is an unordered landmark pair plus its generation status.
type Connection struct {
	From   BlockPos `json:"from"`
	To     BlockPos `json:"to"`
	Status Status   `json:"status"`
}

// Key returns the order-independent identity of the connection.
func (c Connection) Key() PairKey {
	return NewPairKey(c.From, c.To)
}

func (c Connection) String() string {
	return fmt.Sprintf("%s <-> %s [%s]", c.From, c.To, c.Status)
}

// PairKey identifies an unordered landmark pair: A is never greater than B.
type PairKey struct {
	A, B BlockPos
}

// NewPairKey normalises (a, b) and (b, a) to the same key.
func NewPairKey(a, b BlockPos) PairKey {
	if b.Less(a) {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// Material is the road family a record was built with.
type Material int

const (
	Artificial Material = iota
	Natural
)

func (m Material) String() string {
	switch m {
	case Artificial:
		return "artificial"
	case Natural:
		return "natural"
	default:
		return fmt.Sprintf("Material(%d)", int(m))
	}
}

// RoadSegment is one center-line step plus its lateral width extrusion.
type RoadSegment struct {
	Center    BlockPos   `json:"center"`
	Positions []BlockPos `json:"positions"`
}

// RoadRecord is the materialised path for one completed connection.
type RoadRecord struct {
	From     BlockPos      `json:"from"`
	To       BlockPos      `json:"to"`
	Width    int           `json:"width"`
	Material Material      `json:"material"`
	Palette  []string      `json:"palette,omitempty"`
	Segments []RoadSegment `json:"segments"`
}

// Centers returns the center line of the record in order.
func (r RoadRecord) Centers() []BlockPos {
	centers := make([]BlockPos, len(r.Segments))
	for i, s := range r.Segments {
		centers[i] = s.Center
	}
	return centers
}

// WorldData is everything persisted for one world.
type WorldData struct {
	Landmarks   []BlockPos   `json:"landmarks"`
	Connections []Connection `json:"connections"`
	Roads       []RoadRecord `json:"roads"`
}

// Clone returns a deep-enough copy: the slices are fresh, records are shared
// because they are never mutated after creation.
func (d WorldData) Clone() WorldData {
	return WorldData{
		Landmarks:   append([]BlockPos(nil), d.Landmarks...),
		Connections: append([]Connection(nil), d.Connections...),
		Roads:       append([]RoadRecord(nil), d.Roads...),
	}
}
