package lifecycle

import (
	"path/filepath"

	"github.com/catalystpanel/catalyst/pkg/types"
)

// Environment keys computed by the control plane. They override anything
// the template or the workload sets.
const (
	EnvServerDir = "SERVER_DIR"
	EnvNetworkIP = "CATALYST_NETWORK_IP"
)

// ComposeEnvironment builds the environment the agent sees: template
// variable defaults, overridden by the workload's own environment,
// overridden by the computed keys.
func ComposeEnvironment(tpl *types.Template, w *types.Workload, serverDataRoot string) map[string]string {
	env := make(map[string]string, len(tpl.Variables)+len(w.Environment)+2)

	for _, v := range tpl.Variables {
		env[v.Name] = v.Default
	}
	for k, v := range w.Environment {
		env[k] = v
	}

	env[EnvServerDir] = filepath.Join(serverDataRoot, w.UUID)
	if w.PrimaryIP != "" {
		env[EnvNetworkIP] = w.PrimaryIP
	}
	return env
}
