// Package orchestrator drives one ping scenario run against a cellular
// testbed.
//
// A run walks a fixed lifecycle:
//
//	Configure -> StartNetwork -> Attach -> Probe
//	         [-> StopUEs -> Attach -> Probe] x ReattachCount
//	         -> StopAll
//
// Every step is a call on one of the collaborator interfaces of package
// testbed. The lifecycle is enforced by a pure transition table (see
// ApplyEvent); a probe is only legal right after an attach of the same
// cycle, so attach results never cross a reattach boundary.
//
// Failure handling is a policy over the error kind, not control flow. The
// first failing step ends the sequence; the topology is then torn down
// exactly once and the Policy maps the error to a Verdict:
//
//   - PolicyStrict: every failure is fatal.
//   - PolicyCrashOnly: attach, reachability and remote call failures are
//     tolerated and the run passes with VerdictToleratedFailure. Process
//     crashes, configuration errors and unclassified errors stay fatal.
//
// A failing teardown changes the verdict only when it reports a process
// crash. Configuration errors end the run before any component starts, so
// no teardown is needed.
package orchestrator
