package domain

// Parent is keyed by email and embeds full child snapshots, not references.
type Parent struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Children []Child  `json:"children"`
	Reviews  []Review `json:"reviews"`

	Version int64 `json:"-"`
}

// Normalize replaces nil collections with empty ones.
func (p *Parent) Normalize() {
	if p.Children == nil {
		p.Children = []Child{}
	}
	if p.Reviews == nil {
		p.Reviews = []Review{}
	}
}

// ChildIndex returns the position of the embedded child with id, or -1.
func (p *Parent) ChildIndex(id string) int {
	for i, c := range p.Children {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// WithoutChild returns the embedded children minus id, and whether id was
// present.
func (p *Parent) WithoutChild(id string) ([]Child, bool) {
	out := make([]Child, 0, len(p.Children))
	found := false
	for _, c := range p.Children {
		if c.ID == id {
			found = true
			continue
		}
		out = append(out, c)
	}
	return out, found
}
