// Package server hosts the Fiber HTTP service and the request middleware chain:
// request IDs, user token extraction, global response headers, access logging and
// the 500 error handler. Routes live in the routes subpackage and are attached by
// the caller, so keep exports narrow and accept explicit dependencies.
package server
