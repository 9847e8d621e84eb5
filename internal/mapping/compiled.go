package mapping

// Direction selects which side of a mapping is the source.
type Direction uint8

const (
	// Forward maps object space to entity space.
	Forward Direction = iota

	// Reverse maps entity space to object space.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// table holds the lookups for one direction, keyed by source key.
type table struct {
	target  map[string]string
	fn      map[string]Transform
	elemFn  map[string]Transform
	nested  map[string]*Compiled
	kinds   map[string]FieldKind
	ordered []string
}

// Compiled is the precomputed bidirectional mapping for one entity type.
//
// A Compiled value is never modified after Compile returns and is safe for
// concurrent use.
type Compiled struct {
	forward table
	reverse table

	entityKeys       []string
	nestedEntityKeys []string
}

func (c *Compiled) table(dir Direction) *table {
	if dir == Reverse {
		return &c.reverse
	}
	return &c.forward
}

// Keys returns the source keys of dir in sorted order.
func (c *Compiled) Keys(dir Direction) []string {
	return c.table(dir).ordered
}

// Target returns the key that key maps to in dir.
func (c *Compiled) Target(dir Direction, key string) (string, bool) {
	t, ok := c.table(dir).target[key]
	return t, ok
}

// EntityKey returns the entity key for an object key.
func (c *Compiled) EntityKey(objectKey string) (string, bool) {
	return c.Target(Forward, objectKey)
}

// ObjectKey returns the object key for an entity key.
func (c *Compiled) ObjectKey(entityKey string) (string, bool) {
	return c.Target(Reverse, entityKey)
}

// Transform returns the scalar transform registered for key, or nil.
func (c *Compiled) Transform(dir Direction, key string) Transform {
	return c.table(dir).fn[key]
}

// ElementTransform returns the per-element transform of an array key, or nil.
func (c *Compiled) ElementTransform(dir Direction, key string) Transform {
	return c.table(dir).elemFn[key]
}

// Nested returns the child mapping of a nested key, or nil.
func (c *Compiled) Nested(dir Direction, key string) *Compiled {
	return c.table(dir).nested[key]
}

// Kind returns how key is mapped in dir, or 0 when key is unmapped.
func (c *Compiled) Kind(dir Direction, key string) FieldKind {
	return c.table(dir).kinds[key]
}

// EntityKeys returns every entity-space key in sorted order.
func (c *Compiled) EntityKeys() []string {
	return c.entityKeys
}

// NestedEntityKeys returns the entity keys that carry a child mapping.
// Relational backends load these as relations.
func (c *Compiled) NestedEntityKeys() []string {
	return c.nestedEntityKeys
}
