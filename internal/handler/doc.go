// Package handler implements the HTTP layer of the yahalom server.
//
// # Handlers
//
// CollectionHandler serves the REST API of one collection (questions, tests,
// study fields). Register mounts its routes under a prefix:
//
//	GET    /api/questions            live records, ?q= filters by search text
//	POST   /api/questions            create, 201 with the assigned id
//	GET    /api/questions/{id}       one live record, ?archived=true for any
//	PUT    /api/questions/{id}       merge the body into the record
//	PATCH  /api/questions/{id}       same as PUT
//	DELETE /api/questions/{id}       archive
//	GET    /api/questions/export     ?format=json|yaml, archived included
//	POST   /api/questions/import     create one record per item
//
// Health reports the state of the collection files for load balancers.
//
// # Response Format
//
// Success responses return JSON data. Error responses return JSON with
// {error, details}: 400 for validation failures and malformed bodies, 404 for
// unknown ids, 500 when the collection file cannot be read or written.
//
// # Middleware
//
// Chain composes Recover, CORS, Logger, Metrics and Auth. Auth accepts bearer
// tokens whose bcrypt hash is configured.
package handler
