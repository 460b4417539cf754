// Package ratchet audits the feature ledger across an agent session.
//
// The ledger only ratchets forward: a session may flip features to passing
// and, in the modes that build the checklist, add new ones. It may never
// remove a feature or rewrite a description. A session that breaks this is
// rolled back by restoring the snapshot taken before it ran.
package ratchet
