// Package service implements business logic for the yahalom server.
//
// CollectionService sits between the HTTP handlers and a collection
// repository. It stamps modification times, filters listings by search term,
// converts between interchange formats and the stored records, and publishes
// an event for every mutation.
//
// # Event System
//
// Mutations publish Change events on the EventBus. Subscribers are the SSE hub,
// which forwards them to the admin UI, and the replicator, which copies the
// changed collection to its backup sinks. Publishing never blocks: a slow
// subscriber misses events.
//
// # Validation
//
// Create validates the submitted record. Updates are validated after the patch
// is merged, by the validator the repository is opened with.
package service
