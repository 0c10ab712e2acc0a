// Package publisher delivers session artifacts to the destination bound to a
// room's uploader account.
//
// Three backends exist: an HTTP platform API (bearer-token JSON plus
// multipart uploads), an S3 archive that writes one prefix per artifact, and
// a local directory archive. The Router picks the backend by account name and
// is the only type the workflow depends on.
package publisher
