package geotree

// Serializer is the external data-section collaborator. It stores an
// opaque value and returns the byte offset within the data section at
// which it was written. The tree core never interprets the bytes backing
// that offset; it only does offset arithmetic with it (spec.md 4.G, 6).
type Serializer interface {
	StoreData(value interface{}) (uint32, error)
}
