package live

// OpKind discriminates the two mutation kinds carried on the wire.
type OpKind string

const (
	OpSet    OpKind = "set"
	OpDelete OpKind = "delete"
)

// Op is the wire-level unit of change. Path addresses a container (ordered
// keys from the root); Key is the field or entry mutated within it. Clock is
// the origin document's monotonic clock at emission time: advisory ordering
// only, never enforced inside the container tree.
type Op struct {
	Kind  OpKind   `json:"kind"`
	Path  []string `json:"path"`
	Key   string   `json:"key"`
	Value any      `json:"value,omitempty"`
	Clock int64    `json:"clock"`
}
