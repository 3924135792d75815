/*
Package agent implements a simulated node agent speaking the gateway wire
contract.

The real agent runs next to a container runtime on a worker node and is a
separate deliverable; this one exists so the control plane can be developed
and tested end to end without a runtime. It dials the gateway, presents the
node's hello frame, heartbeats, and answers lifecycle commands with the
status updates a real agent would produce: install_server with installed,
start_server with running (plus a fabricated container id), stop_server
with stopped. Backups are written as flat files under the agent's data
directory; blob chunks are reassembled to their target path.

Behavior hooks let tests inject failures or crashes:

	a := agent.New(agent.Config{NodeID: node.ID, Key: node.AgentKey, DataDir: dir})
	a.OnCommand = func(cmdType string, cmd *gateway.Command) bool {
		return cmdType != gateway.CmdStartServer // swallow starts
	}
	a.Connect(gatewayAddr)
	a.ReportCrash(workload.ID)

The catalyst CLI exposes the same simulator as `catalyst agent` for local
development.
*/
package agent
