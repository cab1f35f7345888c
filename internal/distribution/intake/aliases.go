package intake

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// Aliases lists, per lead field, the payload keys that carry it.
type Aliases struct {
	FirstName   []string `yaml:"first_name"`
	LastName    []string `yaml:"last_name"`
	FullName    []string `yaml:"full_name"`
	Email       []string `yaml:"email"`
	Phone       []string `yaml:"phone"`
	Zipcode     []string `yaml:"zipcode"`
	City        []string `yaml:"city"`
	County      []string `yaml:"county"`
	State       []string `yaml:"state"`
	Address     []string `yaml:"address"`
	Industry    []string `yaml:"industry"`
	MobileFlags []string `yaml:"mobile_flags"`
	Source      []string `yaml:"source"`
}

// DefaultAliases returns the embedded alias table.
func DefaultAliases() (Aliases, error) {
	var a Aliases
	if err := yaml.Unmarshal(defaultAliases, &a); err != nil {
		return Aliases{}, fmt.Errorf("parse embedded aliases: %w", err)
	}
	return a, nil
}

// LoadAliases reads the embedded table and, when path is set, overlays the
// fields that file defines.
func LoadAliases(path string) (Aliases, error) {
	base, err := DefaultAliases()
	if err != nil {
		return Aliases{}, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Aliases{}, fmt.Errorf("read aliases file: %w", err)
	}
	var override Aliases
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Aliases{}, fmt.Errorf("parse aliases file %s: %w", path, err)
	}
	return base.merge(override), nil
}

func (a Aliases) merge(o Aliases) Aliases {
	pick := func(base, over []string) []string {
		if len(over) > 0 {
			return over
		}
		return base
	}
	return Aliases{
		FirstName:   pick(a.FirstName, o.FirstName),
		LastName:    pick(a.LastName, o.LastName),
		FullName:    pick(a.FullName, o.FullName),
		Email:       pick(a.Email, o.Email),
		Phone:       pick(a.Phone, o.Phone),
		Zipcode:     pick(a.Zipcode, o.Zipcode),
		City:        pick(a.City, o.City),
		County:      pick(a.County, o.County),
		State:       pick(a.State, o.State),
		Address:     pick(a.Address, o.Address),
		Industry:    pick(a.Industry, o.Industry),
		MobileFlags: pick(a.MobileFlags, o.MobileFlags),
		Source:      pick(a.Source, o.Source),
	}
}
