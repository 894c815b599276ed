// Package digest computes the canonical content digest used to verify a
// downloaded file against the record held in the coordination store
// (see pkg/coordinator's GetDigest/SetDigestIfAbsent).
//
// MD5 is used deliberately, matching the reference implementation; it is
// a content-addressing key here; cryptographic collision resistance is
// not part of this package's threat model.
package digest
