package directory

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/concess/pkg/credential"
)

// Record is one user as loaded from <data>/users/<username>.yaml.
//
// Records are immutable once published in a Directory. Callers must not
// modify the slices or maps they expose.
type Record struct {
	// Username comes from the file name and is unique within a Directory.
	Username string

	// Credential is the stored secret (PHC argon2, bcrypt, or {CLEARTEXT}).
	// It is only ever handed to the credential package.
	Credential string

	FirstName   string
	LastName    string
	DisplayName string
	Mail        string

	// Groups is sorted and deduplicated.
	Groups []string

	// Attributes holds protocol-facing extra attributes. Scalar YAML values
	// are normalized to single-element lists.
	Attributes map[string][]string

	// Disabled users never authenticate but remain visible to searches.
	Disabled bool
}

// Name returns the best human-readable name for the user.
func (r *Record) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	if full := strings.TrimSpace(r.FirstName + " " + r.LastName); full != "" {
		return full
	}
	return r.Username
}

// HasGroup reports whether the user lists group. Group names compare
// case-insensitively, as they do everywhere else in a Directory.
func (r *Record) HasGroup(group string) bool {
	if _, found := slices.BinarySearch(r.Groups, group); found {
		return true
	}
	return slices.ContainsFunc(r.Groups, func(g string) bool {
		return strings.EqualFold(g, group)
	})
}

// String never includes the credential.
func (r *Record) String() string {
	return fmt.Sprintf("Record{Username: %q, Groups: %v, Credential: %s}",
		r.Username, r.Groups, credential.Redact(r.Credential))
}

// recordFile is the on-disk YAML shape.
type recordFile struct {
	Username    string                    `yaml:"username"`
	Password    string                    `yaml:"password"`
	FirstName   string                    `yaml:"first_name"`
	LastName    string                    `yaml:"last_name"`
	DisplayName string                    `yaml:"display_name"`
	Mail        string                    `yaml:"mail"`
	Groups      []string                  `yaml:"groups"`
	Attributes  map[string]attributeValue `yaml:"attributes"`
	Disabled    bool                      `yaml:"disabled"`
}

// attributeValue accepts either a scalar or a sequence of scalars.
type attributeValue []string

func (a *attributeValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*a = nil
			return nil
		}
		*a = attributeValue{node.Value}
		return nil
	case yaml.SequenceNode:
		values := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: attribute values must be scalars", item.Line)
			}
			values = append(values, item.Value)
		}
		*a = values
		return nil
	default:
		return fmt.Errorf("line %d: attribute must be a scalar or a list", node.Line)
	}
}

// toRecord validates the file contents and builds the Record for username.
func (f *recordFile) toRecord(username string) (*Record, error) {
	r := &Record{
		Username:    username,
		Credential:  f.Password,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		DisplayName: f.DisplayName,
		Mail:        f.Mail,
		Disabled:    f.Disabled,
	}

	groups := make([]string, 0, len(f.Groups))
	for _, g := range f.Groups {
		g = strings.TrimSpace(g)
		if g == "" {
			return nil, fmt.Errorf("empty group name")
		}
		groups = append(groups, g)
	}
	slices.Sort(groups)
	r.Groups = slices.Compact(groups)

	if len(f.Attributes) > 0 {
		r.Attributes = make(map[string][]string, len(f.Attributes))
		for k, v := range f.Attributes {
			if strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("empty attribute name")
			}
			r.Attributes[k] = []string(v)
		}
	}

	return r, nil
}
