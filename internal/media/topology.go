package media

// Role names a stream's part in the computation.
type Role string

const (
	RoleReference Role = "ref"
	RoleDistorted Role = "dis"
)

// Topology selects which stream roles an asset carries. The state-machine
// engine is parameterized by topology instead of branching on a reference
// stream being present.
type Topology struct {
	name  string
	roles []Role
}

// FullReference pairs a pristine reference stream with the distorted stream.
var FullReference = Topology{name: "full_reference", roles: []Role{RoleReference, RoleDistorted}}

// NoReference carries only the distorted stream; every reference-side stage
// operation is structurally absent rather than skipped.
var NoReference = Topology{name: "no_reference", roles: []Role{RoleDistorted}}

// Roles returns the stream roles this topology requires, in pipeline order.
func (t Topology) Roles() []Role {
	out := make([]Role, len(t.roles))
	copy(out, t.roles)
	return out
}

// Requires reports whether the topology includes the given role.
func (t Topology) Requires(role Role) bool {
	for _, r := range t.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (t Topology) String() string { return t.name }
