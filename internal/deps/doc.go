// Package deps resolves the external binaries archivist shells out to.
package deps
