// Package servicelevel holds the static table of carrier service levels and
// their delivery-window contracts.
package servicelevel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/shipaudit/internal/domain/carriertime"
)

// Definition is the configuration form of a contract, with window edges in
// carrier 12-hour notation.
type Definition struct {
	Name      string `koanf:"name" yaml:"name"`
	Earliest  string `koanf:"earliest" yaml:"earliest"`
	Latest    string `koanf:"latest" yaml:"latest"`
	DaysLimit int    `koanf:"days_limit" yaml:"days_limit"`
}

// Contract is a resolved delivery-window contract.
type Contract struct {
	Name      string
	Earliest  carriertime.Clock
	Latest    carriertime.Clock
	DaysLimit int
}

// Catalog maps service-level names to contracts. It is immutable once built.
type Catalog struct {
	contracts map[string]Contract
}

// DefaultDefinitions returns the reference service levels.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "Next Day Air Early AM", Earliest: "8:00 A.M.", Latest: "9:30 A.M.", DaysLimit: 1},
		{Name: "Next Day Air", Earliest: "10:30 A.M.", Latest: "12:00 P.M.", DaysLimit: 1},
		{Name: "Next Day Air Saver", Earliest: "3:00 P.M.", Latest: "11:59 P.M.", DaysLimit: 1},
		{Name: "2nd Day Air AM", Earliest: "10:30 A.M.", Latest: "12:00 P.M.", DaysLimit: 2},
		{Name: "2nd Day Air", Earliest: "1:00 P.M.", Latest: "11:59 P.M.", DaysLimit: 2},
	}
}

// Default builds the catalog of reference service levels.
func Default() *Catalog {
	c, err := New(DefaultDefinitions()...)
	if err != nil {
		panic(err) // static table
	}
	return c
}

// New validates defs and builds a catalog.
func New(defs ...Definition) (*Catalog, error) {
	c := &Catalog{contracts: make(map[string]Contract, len(defs))}
	for _, d := range defs {
		contract, err := d.resolve()
		if err != nil {
			return nil, err
		}
		if _, dup := c.contracts[contract.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidContract, contract.Name)
		}
		c.contracts[contract.Name] = contract
	}
	if len(c.contracts) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrInvalidContract)
	}
	return c, nil
}

func (d Definition) resolve() (Contract, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Contract{}, fmt.Errorf("%w: empty name", ErrInvalidContract)
	}
	earliest, err := carriertime.ParseClock(d.Earliest)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: %s earliest: %w", ErrInvalidContract, name, err)
	}
	latest, err := carriertime.ParseClock(d.Latest)
	if err != nil {
		return Contract{}, fmt.Errorf("%w: %s latest: %w", ErrInvalidContract, name, err)
	}
	if earliest > latest {
		return Contract{}, fmt.Errorf("%w: %s window %s after %s", ErrInvalidContract, name, earliest, latest)
	}
	if d.DaysLimit <= 0 {
		return Contract{}, fmt.Errorf("%w: %s days_limit must be positive", ErrInvalidContract, name)
	}
	return Contract{Name: name, Earliest: earliest, Latest: latest, DaysLimit: d.DaysLimit}, nil
}

// Get returns the contract for name.
func (c *Catalog) Get(name string) (Contract, error) {
	contract, ok := c.contracts[name]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return contract, nil
}

// Names returns all service-level names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.contracts))
	for n := range c.contracts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of contracts.
func (c *Catalog) Len() int { return len(c.contracts) }
