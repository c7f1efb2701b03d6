package game

import (
	"arena-brawl/internal/game/geom"
)

// SpawnKind names a category of spawn point supplied by the level.
type SpawnKind uint8

const (
	SpawnPlayer SpawnKind = iota
	SpawnWeapon
	SpawnObjective
)

func (k SpawnKind) String() string {
	switch k {
	case SpawnPlayer:
		return "player"
	case SpawnWeapon:
		return "weapon"
	case SpawnObjective:
		return "objective"
	default:
		return "unknown"
	}
}

// Bounds is the playable region. X is clamped to [MinX, MaxX] and Y is kept
// at or above MinY after every movement update. MaxY is the ceiling for
// projectiles only; bodies are never clamped to it.
type Bounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// Clamp returns p moved inside the bounds.
func (b Bounds) Clamp(p geom.Vec3) geom.Vec3 {
	p.X = geom.Clamp(p.X, b.MinX, b.MaxX)
	if p.Y < b.MinY {
		p.Y = b.MinY
	}
	return p
}

// Contains reports whether p lies within the bounds expanded by margin.
func (b Bounds) Contains(p geom.Vec3, margin float64) bool {
	return p.X >= b.MinX-margin && p.X <= b.MaxX+margin &&
		p.Y >= b.MinY-margin && p.Y <= b.MaxY+margin
}

// GroundQuery answers downward ground probes. top is the height of the
// highest ground surface hit by a ray cast down from origin within far.
type GroundQuery interface {
	ProbeGround(origin geom.Vec3, far float64) (top float64, ok bool)
}

// Level is everything the core needs from level geometry: spawn points,
// bounds and ground probes. The core never inspects tiles directly.
type Level interface {
	GroundQuery
	Spawns(kind SpawnKind) []geom.Vec3
	Bounds() Bounds
}

// Tile is one box of level geometry. Only ground tiles answer probes.
type Tile struct {
	Box    geom.AABB `json:"box"`
	Ground bool      `json:"ground"`
}

// TileLevel is a Level built from axis-aligned tiles.
type TileLevel struct {
	tiles  []Tile
	spawns map[SpawnKind][]geom.Vec3
	bounds Bounds
}

// NewTileLevel creates an empty level with the given bounds.
func NewTileLevel(bounds Bounds) *TileLevel {
	return &TileLevel{
		spawns: make(map[SpawnKind][]geom.Vec3),
		bounds: bounds,
	}
}

// AddTile adds a tile. Players stand on ground tiles.
func (l *TileLevel) AddTile(box geom.AABB, ground bool) {
	l.tiles = append(l.tiles, Tile{Box: box, Ground: ground})
}

// AddSpawn registers a spawn point.
func (l *TileLevel) AddSpawn(kind SpawnKind, pos geom.Vec3) {
	l.spawns[kind] = append(l.spawns[kind], pos)
}

func (l *TileLevel) Spawns(kind SpawnKind) []geom.Vec3 {
	return l.spawns[kind]
}

func (l *TileLevel) Bounds() Bounds {
	return l.bounds
}

// Tiles returns the level geometry (read-only; used by the minimap).
func (l *TileLevel) Tiles() []Tile {
	return l.tiles
}

// ProbeGround returns the highest ground top hit straight below origin.
func (l *TileLevel) ProbeGround(origin geom.Vec3, far float64) (float64, bool) {
	best, found := 0.0, false
	for i := range l.tiles {
		if !l.tiles[i].Ground {
			continue
		}
		top, ok := l.tiles[i].Box.IntersectRayDown(origin, far)
		if ok && (!found || top > best) {
			best, found = top, true
		}
	}
	return best, found
}

// DefaultArena is the stock stage: a wide floor, three floating platforms,
// four player spawns, two weapon spawns and one trophy spawn.
func DefaultArena() *TileLevel {
	l := NewTileLevel(Bounds{MinX: -25, MaxX: 25, MinY: 1, MaxY: 20})

	// Floor top at y = 0.
	l.AddTile(geom.AABB{Min: geom.V(-26, -1, -1), Max: geom.V(26, 0, 1)}, true)

	// Platforms.
	l.AddTile(geom.AABB{Min: geom.V(-14, 3.5, -1), Max: geom.V(-8, 4, 1)}, true)
	l.AddTile(geom.AABB{Min: geom.V(-3, 6.5, -1), Max: geom.V(3, 7, 1)}, true)
	l.AddTile(geom.AABB{Min: geom.V(8, 3.5, -1), Max: geom.V(14, 4, 1)}, true)

	for i := 0; i < 4; i++ {
		l.AddSpawn(SpawnPlayer, geom.V(-5+float64(i)*3.5, 1, 0))
	}
	l.AddSpawn(SpawnWeapon, geom.V(-11, 5, 0))
	l.AddSpawn(SpawnWeapon, geom.V(11, 5, 0))
	l.AddSpawn(SpawnObjective, geom.V(0, 8, 0))

	return l
}
