// Package cache provides a TTL-expiring, capacity-bounded LRU cache for
// guarded operation results.
//
// Keys are stable hashes of the operation inputs (see Keyer). Lookups move
// entries to the most-recently-used position; inserting into a full cache
// evicts the least recently used entry. Concurrent misses for the same key
// collapse into a single in-flight computation (single-flight), so at most
// one build runs per key per TTL window.
//
// # Usage
//
//	c := cache.New(cache.Config{
//	    Name:    "products",
//	    MaxSize: 500,
//	    TTL:     time.Minute,
//	})
//
//	v, err := c.DoKeyed(ctx, "get-product", map[string]any{"id": id},
//	    func(ctx context.Context) (any, error) {
//	        return loadProduct(ctx, id)
//	    })
package cache
