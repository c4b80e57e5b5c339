// Package geotree builds an in-memory, alias-aware binary search tree over
// IP networks and serializes it into the bit-packed record format of a
// compact geolocation-style binary database.
package geotree
