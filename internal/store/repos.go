package store

import (
	"context"
	"strconv"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	kgstrings "kindergarten/pkg/platform/strings"
)

// Field paths shared by more than one service.
var (
	PathName     = docstore.P("name")
	PathID       = docstore.P("id")
	PathChildren = docstore.P("children")
	PathClasses  = docstore.P("classes")
	PathReviews  = docstore.P("reviews")
	PathNotes    = docstore.P("notes")
)

// GardenChildPath addresses Kindergarten.children[childID].
func GardenChildPath(childID string) docstore.Path {
	return docstore.P("children", childID)
}

// ClassChildPath addresses Kindergarten.classes[i].children[childID].
func ClassChildPath(classIndex int, childID string) docstore.Path {
	return docstore.P("classes", strconv.Itoa(classIndex), "children", childID)
}

// Gardens is the Kindergartens repository. Documents are keyed by garden id.
type Gardens struct {
	*Repo[domain.Garden]
}

// NewGardens binds the Kindergartens collection.
func NewGardens(s docstore.Store) *Gardens {
	return &Gardens{NewRepo[domain.Garden](s, docstore.Kindergartens)}
}

// FindByName returns the first kindergarten with name. Names are not unique;
// the earliest inserted wins.
func (g *Gardens) FindByName(ctx context.Context, name string) (*domain.Garden, error) {
	garden, id, err := g.FindFirst(ctx, docstore.Eq(PathName, name))
	if err != nil {
		return nil, err
	}
	if garden.ID == "" {
		garden.ID = id
	}
	garden.Normalize()
	return garden, nil
}

// All returns every kindergarten in insertion order.
func (g *Gardens) All(ctx context.Context) ([]*domain.Garden, error) {
	gardens, err := g.Find(ctx)
	if err != nil {
		return nil, err
	}
	for _, garden := range gardens {
		garden.Normalize()
	}
	return gardens, nil
}

// Children is the standalone Children repository. Documents are keyed by
// child id, but lookups go through the id field.
type Children struct {
	*Repo[domain.Child]
}

// NewChildren binds the Children collection.
func NewChildren(s docstore.Store) *Children {
	return &Children{NewRepo[domain.Child](s, docstore.Children)}
}

// ByChildID finds standalone documents whose id field equals childID and
// returns them with their document ids.
func (c *Children) ByChildID(ctx context.Context, childID string) ([]*domain.Child, []string, error) {
	docs, err := c.store.Find(ctx, c.coll, docstore.Eq(PathID, childID))
	if err != nil {
		return nil, nil, err
	}
	children := make([]*domain.Child, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		child, err := decode[domain.Child](doc)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, child)
		ids = append(ids, doc.ID)
	}
	return children, ids, nil
}

// Parents is keyed by normalized email.
type Parents struct {
	*Repo[domain.Parent]
}

// NewParents binds the Parents collection.
func NewParents(s docstore.Store) *Parents {
	return &Parents{NewRepo[domain.Parent](s, docstore.Parents)}
}

// ByEmail loads the parent keyed by email.
func (p *Parents) ByEmail(ctx context.Context, email string) (*domain.Parent, error) {
	parent, err := p.Get(ctx, kgstrings.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	parent.Normalize()
	return parent, nil
}

// WithChild returns every parent embedding a child with childID.
func (p *Parents) WithChild(ctx context.Context, childID string) ([]*domain.Parent, error) {
	parents, err := p.Find(ctx, docstore.Eq(PathChildren.Child("id"), childID))
	if err != nil {
		return nil, err
	}
	for _, parent := range parents {
		parent.Normalize()
	}
	return parents, nil
}

// People groups the three person collections. Each is keyed by email.
type People struct {
	Staff     *Repo[domain.Person]
	Directors *Repo[domain.Person]
	Admins    *Repo[domain.Person]
}

// NewPeople binds Staff, Directors, and SystemAdministrators.
func NewPeople(s docstore.Store) *People {
	return &People{
		Staff:     NewRepo[domain.Person](s, docstore.Staff),
		Directors: NewRepo[domain.Person](s, docstore.Directors),
		Admins:    NewRepo[domain.Person](s, docstore.SystemAdministrators),
	}
}

// ForRole returns the repository holding accounts of role, or nil for parents.
func (p *People) ForRole(role domain.Role) *Repo[domain.Person] {
	switch role {
	case domain.RoleStaff:
		return p.Staff
	case domain.RoleDirector:
		return p.Directors
	case domain.RoleSystemAdministrator:
		return p.Admins
	default:
		return nil
	}
}

// Photos is the ChildPhotos repository; ids are generated.
type Photos struct {
	*Repo[domain.ChildPhoto]
}

// NewPhotos binds the ChildPhotos collection.
func NewPhotos(s docstore.Store) *Photos {
	return &Photos{NewRepo[domain.ChildPhoto](s, docstore.ChildPhotos)}
}

// GardenName reserves a kindergarten name. The name is the document id, so
// the store's create-if-absent makes two kindergartens with one name
// impossible.
type GardenName struct {
	GardenID string `json:"gardenId"`
}

// GardenNames is the KindergartenNames repository.
type GardenNames struct {
	*Repo[GardenName]
}

// NewGardenNames binds the KindergartenNames collection.
func NewGardenNames(s docstore.Store) *GardenNames {
	return &GardenNames{NewRepo[GardenName](s, docstore.KindergartenNames)}
}

// Affiliation is an organizational affiliation; its name is the document id.
type Affiliation struct {
	Name string `json:"name"`
}

// Affiliations is the OrganizationalAffiliations repository.
type Affiliations struct {
	*Repo[Affiliation]
}

// NewAffiliations binds the OrganizationalAffiliations collection.
func NewAffiliations(s docstore.Store) *Affiliations {
	return &Affiliations{NewRepo[Affiliation](s, docstore.OrganizationalAffiliations)}
}
