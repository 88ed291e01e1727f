// Package commandrunner implements the PTY fallback for slash commands a
// backend adapter does not know natively (spec.md §9 design note): spawn
// the command under a managed pseudo-terminal, scrape its output until a
// silence threshold elapses, and return the captured text as a result.
//
// It is deliberately narrow and optional — a session only reaches for it
// when the adapter reports a slash command as unsupported, and it is
// disabled entirely unless SlashCommandConfig.PTYEnabled is set.
package commandrunner
