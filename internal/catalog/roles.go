package catalog

// Role is a functional slot a model fills.
type Role string

const (
	// RolePrimary is the main chat/edit model.
	RolePrimary Role = "primary"
	// RoleAutocomplete is the inline completion model.
	RoleAutocomplete Role = "autocomplete"
	// RoleEmbedding is the embedding model for indexing.
	RoleEmbedding Role = "embedding"
	// RoleExtras is the optional extras slot (vision etc.).
	RoleExtras Role = "extras"
)

// Roles returns all roles in fixed priority order. Selection, budget
// crediting and orchestration all walk roles in this order.
func Roles() []Role {
	return []Role{RolePrimary, RoleAutocomplete, RoleEmbedding, RoleExtras}
}

// IsValid checks if the role is one of the fixed slots.
func (r Role) IsValid() bool {
	switch r {
	case RolePrimary, RoleAutocomplete, RoleEmbedding, RoleExtras:
		return true
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
