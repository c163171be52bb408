package facts

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// EntityType is the collection an entity belongs to.
type EntityType string

const (
	TypePerson   EntityType = "person"
	TypeCompany  EntityType = "company"
	TypeProject  EntityType = "project"
	TypeResource EntityType = "resource"
)

// EntityTypes lists every collection in enumeration order.
var EntityTypes = []EntityType{TypePerson, TypeCompany, TypeProject, TypeResource}

// Dir returns the collection directory relative to the entity root.
// People and companies are grouped under "areas".
func (t EntityType) Dir() string {
	switch t {
	case TypePerson:
		return "areas/people"
	case TypeCompany:
		return "areas/companies"
	case TypeProject:
		return "projects"
	case TypeResource:
		return "resources"
	}
	return ""
}

// ParseEntityType accepts the canonical singular tags and the plural
// directory names ("people", "companies", "projects", "resources").
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "people":
		return TypePerson, nil
	case "company", "companies":
		return TypeCompany, nil
	case "project", "projects":
		return TypeProject, nil
	case "resource", "resources":
		return TypeResource, nil
	}
	return "", errors.Wrapf(ErrInvalidEntity, "unknown entity type %q", s)
}

// EntityRef identifies one entity: a collection plus a normalized slug.
type EntityRef struct {
	Type EntityType `json:"type"`
	Slug string     `json:"slug"`
}

// NewRef builds a ref, parsing the type and slugifying the name.
func NewRef(entityType, name string) (EntityRef, error) {
	t, err := ParseEntityType(entityType)
	if err != nil {
		return EntityRef{}, err
	}
	return EntityRef{Type: t, Slug: Slugify(name)}, nil
}

// Path returns the entity path used in relatedEntities,
// e.g. "areas/people/tara" or "projects/bards-and-cards".
func (r EntityRef) Path() string {
	return r.Type.Dir() + "/" + r.Slug
}

func (r EntityRef) String() string { return r.Path() }

// ParsePath resolves an entity path back to a ref. Paths under "areas"
// need a subtype segment; other paths use their first segment as the type.
func ParsePath(path string) (EntityRef, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return EntityRef{}, errors.Wrapf(ErrInvalidEntity, "entity path %q too short", path)
	}

	typeSeg := parts[0]
	if typeSeg == "areas" {
		if len(parts) < 3 {
			return EntityRef{}, errors.Wrapf(ErrInvalidEntity, "area path %q has no subtype", path)
		}
		typeSeg = parts[1]
	}

	t, err := ParseEntityType(typeSeg)
	if err != nil {
		return EntityRef{}, err
	}
	slug := Slugify(parts[len(parts)-1])
	return EntityRef{Type: t, Slug: slug}, nil
}

var (
	nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)
	multiDash = regexp.MustCompile(`-+`)
)

// Slugify converts arbitrary names (often model output) into a safe
// lowercase, hyphen-separated directory name. Empty input yields "unnamed".
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonSlugRe.ReplaceAllString(s, "-")
	s = multiDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}

// IDPrefix returns the fact id prefix for a slug: its first three bytes.
func IDPrefix(slug string) string {
	if len(slug) <= 3 {
		return slug
	}
	return slug[:3]
}
