package methodcache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-method-cache/cache"
	"gopkg.in/yaml.v3"
)

// policyFile is the YAML form of a Policy:
//
//	types:
//	  - Catalog
//	members:
//	  - type: Profile
//	    member: DisplayName
//	    kind: read_write_property
//	  - type: Profile
//	    member: Avatar
//	    kind: setter
//	    invalidates:
//	      - {type: Profile, member: AvatarURL, kind: getter}
//	exclude:
//	  - {type: Catalog, member: Now, kind: method}
type policyFile struct {
	Types   []string     `yaml:"types"`
	Members []memberRule `yaml:"members"`
	Exclude []memberSpec `yaml:"exclude"`
}

type memberSpec struct {
	Type   string `yaml:"type"`
	Member string `yaml:"member"`
	Kind   string `yaml:"kind"`
}

type memberRule struct {
	memberSpec  `yaml:",inline"`
	Invalidates []memberSpec `yaml:"invalidates"`
}

// Validate implements validation.Validatable.
func (s memberSpec) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.By(withoutColon)),
		validation.Field(&s.Member, validation.Required, validation.By(withoutColon)),
		validation.Field(&s.Kind, validation.Required, validation.By(knownKind)),
	)
}

func (s memberSpec) descriptor() (cache.MemberDescriptor, error) {
	kind, err := cache.ParseMemberKind(s.Kind)
	if err != nil {
		return cache.MemberDescriptor{}, err
	}
	return cache.MemberDescriptor{TypeName: s.Type, MemberName: s.Member, Kind: kind}, nil
}

func withoutColon(value any) error {
	s, _ := value.(string)
	if strings.ContainsRune(s, ':') {
		return errors.New("must not contain ':'")
	}
	return nil
}

func knownKind(value any) error {
	s, _ := value.(string)
	if _, err := cache.ParseMemberKind(s); err != nil {
		return errors.New("must be one of getter, setter, read_write_property, method")
	}
	return nil
}

// LoadPolicy builds a Policy from its YAML description. An empty document
// yields an empty policy.
func LoadPolicy(r io.Reader) (*Policy, error) {
	p := NewPolicy()
	if err := p.Load(r); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPolicyFile reads a YAML policy from path.
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()

	return LoadPolicy(f)
}

// Load merges the registrations of a YAML document into p.
func (p *Policy) Load(r io.Reader) error {
	var file policyFile

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode policy: %w", err)
	}

	for i, typeName := range file.Types {
		if err := p.RegisterType(typeName); err != nil {
			return fmt.Errorf("types[%d]: %w", i, err)
		}
	}

	for i, m := range file.Members {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: members[%d]: %v", cache.ErrInvalidMember, i, err)
		}
		member, err := m.descriptor()
		if err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}

		targets := make([]cache.MemberDescriptor, 0, len(m.Invalidates))
		for j, spec := range m.Invalidates {
			if err := spec.Validate(); err != nil {
				return fmt.Errorf("%w: members[%d].invalidates[%d]: %v", cache.ErrInvalidMember, i, j, err)
			}
			target, err := spec.descriptor()
			if err != nil {
				return fmt.Errorf("members[%d].invalidates[%d]: %w", i, j, err)
			}
			targets = append(targets, target)
		}

		var opts []RuleOption
		if len(targets) > 0 {
			opts = append(opts, Invalidates(targets...))
		}
		if err := p.Register(member, opts...); err != nil {
			return fmt.Errorf("members[%d]: %w", i, err)
		}
	}

	for i, spec := range file.Exclude {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%w: exclude[%d]: %v", cache.ErrInvalidMember, i, err)
		}
		member, err := spec.descriptor()
		if err != nil {
			return fmt.Errorf("exclude[%d]: %w", i, err)
		}
		if err := p.Exclude(member); err != nil {
			return fmt.Errorf("exclude[%d]: %w", i, err)
		}
	}

	return nil
}
