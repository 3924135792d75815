package template

import (
	"regexp"
	"strings"

	"github.com/catalystpanel/catalyst/pkg/types"
)

var (
	braceVar = regexp.MustCompile(`\$\{([A-Z][A-Z0-9_]*)\}`)
	bareVar  = regexp.MustCompile(`\$([A-Z][A-Z0-9_]*)`)
)

// RewriteStartup converts shell-style variable references in a startup
// command to the {{NAME}} placeholder syntax. Only uppercase identifiers
// are rewritten; $1 or $srv_dir style references pass through.
func RewriteStartup(s string) string {
	s = braceVar.ReplaceAllString(s, "{{$1}}")
	s = bareVar.ReplaceAllString(s, "{{$1}}")
	return s
}

var (
	shebangRe       = regexp.MustCompile(`^#!\s*(/bin/(a?)sh|/usr/bin/env\s+(a?)sh)\s*$`)
	doubleBracketRe = regexp.MustCompile(`\[\[(.+?)\]\]`)
	singleBracketRe = regexp.MustCompile(`\[[^][]*\]`)
	setERe          = regexp.MustCompile(`(?m)^\s*set\s+-[a-zA-Z]*e`)
	pkgInstallRe    = regexp.MustCompile(`(?m)\b(apt-get|apt|apk|yum|dnf|microdnf)\b[^\n]*\b(install|add)\b`)
	commonUtilRe    = regexp.MustCompile(`\b(curl|wget|jq|unzip|tar|ca-certificates)\b`)
)

const bashShebang = "#!/bin/bash"

// preflightBlock installs the tooling most install scripts assume. It is
// prepended when a script uses one of the common utilities without any
// visible package-install step of its own.
const preflightBlock = `if command -v apt-get >/dev/null 2>&1; then
    apt-get update -qq
    apt-get install -y -qq curl wget jq unzip tar ca-certificates
elif command -v apk >/dev/null 2>&1; then
    apk add --no-cache curl wget jq unzip tar ca-certificates
fi`

// RewriteInstallScript lowers a foreign install script into the portable
// bash dialect the install container runs:
//
//   - line endings normalized to \n
//   - sh/ash shebangs rewritten to bash (and a bash shebang added when
//     missing entirely)
//   - the foreign mount point /mnt/server becomes {{SERVER_DIR}}
//   - [[ ... ]] tests lowered to [ ... ] and == inside test brackets to =
//   - "set -e" inserted after the shebang when absent
//   - a preflight package-install block added when the script relies on
//     common utilities without installing them
func RewriteInstallScript(script string) string {
	if script == "" {
		return ""
	}

	script = strings.ReplaceAll(script, "\r\n", "\n")
	script = strings.ReplaceAll(script, "\r", "\n")
	script = strings.ReplaceAll(script, "/mnt/server", "{{SERVER_DIR}}")

	script = doubleBracketRe.ReplaceAllString(script, "[$1]")
	script = singleBracketRe.ReplaceAllStringFunc(script, func(m string) string {
		return strings.ReplaceAll(m, "==", "=")
	})

	lines := strings.Split(script, "\n")
	if shebangRe.MatchString(lines[0]) {
		lines[0] = bashShebang
	} else if !strings.HasPrefix(lines[0], "#!") {
		lines = append([]string{bashShebang}, lines...)
	}

	var prologue []string
	if !setERe.MatchString(strings.Join(lines[1:], "\n")) {
		prologue = append(prologue, "set -e")
	}
	body := strings.Join(lines[1:], "\n")
	if commonUtilRe.MatchString(body) && !pkgInstallRe.MatchString(body) {
		prologue = append(prologue, preflightBlock)
	}

	if len(prologue) == 0 {
		return strings.Join(lines, "\n")
	}
	out := make([]string, 0, len(lines)+len(prologue)+1)
	out = append(out, lines[0])
	out = append(out, prologue...)
	out = append(out, lines[1:]...)
	return strings.Join(out, "\n")
}

// NormalizeStop maps a foreign stop token to a stop command and signal.
// Signal tokens (and the ^C convention) produce a bare signal; any other
// string is a console command, with its leading slash dropped.
func NormalizeStop(token string) (string, types.StopSignal) {
	trimmed := strings.TrimSpace(token)
	switch strings.ToUpper(trimmed) {
	case "^C", "SIGINT":
		return "", types.SignalInt
	case "", "SIGTERM":
		return "", types.SignalTerm
	case "SIGKILL":
		return "", types.SignalKill
	}
	return strings.TrimPrefix(trimmed, "/"), types.SignalTerm
}
