// Package safety decides whether a shell command proposed by the coding agent
// may run on the host.
//
// The coding loop hands the agent a shell. The agent is capable and usually
// well behaved, but nothing it emits can be trusted: a single hallucinated or
// prompt-injected command can wipe the working tree, kill unrelated processes
// or fetch and run remote code. Every command therefore passes through
// Validate before anything is spawned.
//
// # Threat Model
//
// T1 - Unknown executables: any segment whose executable is not on the
// allowlist is rejected outright. The allowlist check runs first and is
// authoritative; later rules can only reject further.
//
// T2 - Smuggled commands: a raw command is split into segments on top-level
// control operators (;, &&, ||, |, &, newline) with full quote awareness, so
// "echo hi; rm -rf /" is two segments. Command substitution ($(...), backticks,
// <(...), >(...)) is rejected because it hides a command inside an argument.
// Input whose quoting cannot be parsed is rejected rather than guessed at.
//
// T3 - Destructive deletion: rm with a recursive or force flag may only target
// disposable build and dependency directories (node_modules, dist, ...).
//
// T4 - Arbitrary process termination: pkill must name a known development
// process; kill may not target a numeric process id.
//
// T5 - Fetch and execute: a downloader (curl, wget) may not share a command
// line with an interpreter, and may never pipe into one.
//
// # Design Principles
//
// Rules are small predicates over the tokenized segments plus the raw
// string. Separator-level segmentation alone cannot see patterns that span
// segments, so the pattern rules also scan the raw text.
//
// Rejections are policy decisions, not errors: Validate returns a Verdict
// carrying a human-readable reason.
package safety
