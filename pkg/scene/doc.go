// Package scene defines the scene tree consumed by evaluation: an arena of
// immutable nodes (groups, leaves, transforms, colors, CSG operators,
// render/list/root containers) addressed by integer handles, with a
// canonical content identity used as the geometry cache key.
package scene
