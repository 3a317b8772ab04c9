package partition

import (
	"fmt"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// Config describes the field being partitioned.
//
// The process count is not part of Config: it is the size of the world
// communicator the manager is created with.
type Config struct {
	// FieldSize is the extent of the field in every dimension. The field
	// covers [0, FieldSize) with its upper-left corner at the origin.
	FieldSize geom.Point `yaml:"fieldSize"`

	// Toroidal makes every dimension wrap around.
	Toroidal bool `yaml:"toroidal"`

	// AreaOfInterest is the halo extent in every dimension. It must be
	// non-negative and strictly less than half of every leaf's extent.
	AreaOfInterest geom.Point `yaml:"areaOfInterest"`
}

// Bounds returns the field region.
func (c Config) Bounds() geom.Region {
	return geom.MustRegion(geom.Zero(len(c.FieldSize)), c.FieldSize)
}

// Validate checks the static configuration. Constraints that depend on the
// final decomposition, such as the AOI against leaf sizes, are checked when
// the partition is initialized.
func (c Config) Validate() error {
	d := len(c.FieldSize)
	if d == 0 {
		return fmt.Errorf("%w: field size must have at least one dimension", types.ErrInvalidConfig)
	}
	for i, s := range c.FieldSize {
		if s <= 0 {
			return fmt.Errorf("%w: field size %v is not positive in dimension %d", types.ErrInvalidConfig, c.FieldSize, i)
		}
	}
	if len(c.AreaOfInterest) != d {
		return fmt.Errorf("%w: area of interest %v does not match %d dimensions", types.ErrInvalidConfig, c.AreaOfInterest, d)
	}
	for i, a := range c.AreaOfInterest {
		if a < 0 {
			return fmt.Errorf("%w: area of interest %v is negative in dimension %d", types.ErrInvalidConfig, c.AreaOfInterest, i)
		}
	}

	return nil
}

// wrapBounds returns the field bounds when toroidal, nil otherwise.
func (c Config) wrapBounds() *geom.Region {
	if !c.Toroidal {
		return nil
	}
	b := c.Bounds()

	return &b
}
