/*
Package lifecycle drives the workload state machine.

Nine states: stopped, installing, installed, starting, running, stopping,
crashed, suspended, transferring. Control-plane commands move a workload
into a pending state and dispatch the matching agent command; the terminal
refinement arrives later as an agent status update.

	install   stopped|crashed|installed  -> installing
	start     stopped|crashed|installed  -> starting
	stop      starting|running           -> stopping
	restart   running                    -> stopping, then starting
	suspend   any except transferring    -> suspended
	unsuspend suspended                  -> stopped
	transfer  stopped                    -> transferring

# Reducer

Every state-affecting operation for one workload, commands from the HTTP
path and events from the agent alike, runs on that workload's serial
queue. A stop that arrives mid-start is applied after the start, never
interleaved with it, and the transition guards observe a consistent state.
Nothing here takes a global lock; workloads reduce independently.

# Crash handling

A crashed status update increments the crash counter. With restart policy
never the workload stays crashed; with on-failure or always an automatic
start is scheduled (short delay) while the counter is within the limit.
Past the limit a system log records that manual reset is required.
ResetCrashCount zeroes the counter and is legal in any state.

# Environment

The environment an agent sees is composed before every install, start, and
restart: template variable defaults, overridden by the workload's own
environment, overridden by the two computed keys SERVER_DIR and
CATALYST_NETWORK_IP.
*/
package lifecycle
