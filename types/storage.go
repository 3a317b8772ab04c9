package types

import "github.com/eclab/mason-sub011/geom"

// Object is anything that can be stored in a field. Object IDs must be
// unique across the whole distributed run.
type Object interface {
	ObjectID() int64
}

// Storage is the local, per-process storage a halo field wraps.
//
// All coordinates are absolute field coordinates. A storage instance is
// owned and mutated by exactly one process; cross-process data only moves
// through Pack and Unpack of explicit regions.
type Storage[T Object] interface {
	// Bounds returns the region currently backed by the storage.
	Bounds() geom.Region

	// Reshape changes the backed region. Content inside both the old and the
	// new bounds is kept; content outside the new bounds is discarded.
	Reshape(bounds geom.Region)

	// Pack serializes the content of regions, in order. Regions must lie
	// inside Bounds.
	Pack(regions []geom.Region) ([]byte, error)

	// Unpack replaces the content of regions with data produced by Pack over
	// regions of identical shapes, in the same order.
	Unpack(regions []geom.Region, data []byte) error

	// SetLocation places obj at p, replacing any stored object with the same ID.
	SetLocation(obj T, p geom.Point) error

	// RemoveObject removes obj wherever it is stored and reports whether it was found.
	RemoveObject(obj T) bool

	// RemoveObjectsAt removes every object at p.
	RemoveObjectsAt(p geom.Point) error

	// ObjectsAt returns the objects stored at p.
	ObjectsAt(p geom.Point) []T

	// Locate returns the point at which the object with the given ID is stored.
	Locate(id int64) (geom.Point, bool)

	// ObjectsIn returns the location of every object stored inside region,
	// keyed by object ID.
	ObjectsIn(region geom.Region) map[int64]geom.Point

	// Clear removes every object inside region.
	Clear(region geom.Region)

	// NewEmpty returns an empty storage of the same kind backing bounds.
	NewEmpty(bounds geom.Region) Storage[T]
}
