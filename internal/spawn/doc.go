// Package spawn implements the process spawn contract (spec §6) for the
// subset of adapters that start a local backend subprocess: binary path
// validation, which-equivalent resolution, environment deny-list
// filtering, and an optional before-spawn hook. There is no library
// dependency here deliberately — the retrieval pack carries no
// third-party allowlisted-exec or which-resolution helper, and this is a
// narrow, security-sensitive boundary better kept on the standard
// library than delegated to an unreviewed dependency (see DESIGN.md).
package spawn
