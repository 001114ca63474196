// Package pagination builds listing windows for the MangaDex manga endpoint.
//
// The join engine does not keep a page cursor. The offset of the next window
// is the number of entities already completed, so entities still waiting for
// enrichment are simply requested again and deduplicated on publish:
//
//	q := pagination.DefaultQuery()
//	w := q.Next(collection.Len())
//	listingURL := endpoints.Listing(q.Values(w))
//
// Two windows computed before either page completes will overlap. That is
// expected and handled by the seen set of the join engine.
package pagination
