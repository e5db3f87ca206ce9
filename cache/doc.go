// Package cache provides caching decorators for cogj range reads and header
// stores: an in-process ristretto cache and a Redis header store shared by
// service instances.
//
// Containers are immutable once written, so cached bytes never need
// invalidating while a container keeps its locator. Rewriting a container in
// place leaves stale entries until they expire or are evicted.
package cache
