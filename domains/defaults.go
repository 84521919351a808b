package domains

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/campus-rims/incentive-engine/factory"
	"github.com/campus-rims/incentive-engine/incentive"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// defaultsEpoch is the EffectiveFrom stamped on built-in policies.
var defaultsEpoch = incentive.NewDate(1970, 1, 1)

type yamlDefaults struct {
	Version  int                  `yaml:"version"`
	Policies []factory.PolicyJSON `yaml:"policies"`
}

// Defaults is an incentive.DefaultProvider backed by a YAML table.
type Defaults struct {
	byKey map[incentive.DomainKey]incentive.Policy
}

// LoadDefaults parses the embedded table.
func LoadDefaults() (*Defaults, error) {
	return ParseDefaults(defaultsYAML)
}

// MustLoadDefaults is LoadDefaults for program start-up.
func MustLoadDefaults() *Defaults {
	d, err := LoadDefaults()
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDefaults builds a provider from YAML. Every entry must name a known
// domain, a sub-key that domain accepts (or none), and pass policy
// validation.
func ParseDefaults(data []byte) (*Defaults, error) {
	var doc yamlDefaults
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse default policies: %w", err)
	}

	reg := NewRegistry()
	f := factory.NewPolicyFactory()
	d := &Defaults{byKey: make(map[incentive.DomainKey]incentive.Policy, len(doc.Policies))}

	for i, pj := range doc.Policies {
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("default policy %d: %w", i, err)
		}
		pd, err := reg.For(p.Key.Domain)
		if err != nil {
			return nil, fmt.Errorf("default policy %d: %w", i, err)
		}
		if p.Key.SubKey != "" {
			if err := pd.ValidateSubKey(p.Key.SubKey); err != nil {
				return nil, fmt.Errorf("default policy %d: %w", i, err)
			}
		}
		if _, dup := d.byKey[p.Key]; dup {
			return nil, fmt.Errorf("default policy %d: duplicate key %s", i, p.Key)
		}

		p.ID = incentive.PolicyID("default:" + p.Key.String())
		if p.EffectiveFrom.IsZero() {
			p.EffectiveFrom = defaultsEpoch
		}
		p.IsActive = true
		p.IsDefault = true
		p.Version = doc.Version

		if err := incentive.Validate(p, nil); err != nil {
			return nil, fmt.Errorf("default policy %s: %w", p.Key, err)
		}
		d.byKey[p.Key] = p
	}
	return d, nil
}

// Default returns the entry for key, else the domain-wide entry.
func (d *Defaults) Default(key incentive.DomainKey) (incentive.Policy, bool) {
	if p, ok := d.byKey[key]; ok {
		return p.Clone(), true
	}
	if p, ok := d.byKey[incentive.DomainKey{Domain: key.Domain}]; ok {
		p = p.Clone()
		p.ID = incentive.PolicyID("default:" + key.String())
		return p, true
	}
	return incentive.Policy{}, false
}

// All returns every built-in policy ordered by key.
func (d *Defaults) All() []incentive.Policy {
	out := make([]incentive.Policy, 0, len(d.byKey))
	for _, p := range d.byKey {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
