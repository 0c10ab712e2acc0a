// Package preflight provides readiness checks for the filesystem paths,
// external binaries, and network services archivist depends on.
//
// The daemon runs RunAll and CheckSystemDeps at startup and logs the results;
// failures are warnings because the recorder endpoint stays useful even when
// publishing is degraded. The "archivist check" command prints the same
// results as a table.
package preflight
