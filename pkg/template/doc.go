/*
Package template imports workload template documents and normalizes them
into Catalyst's canonical form.

Three dialects are accepted on the import surface: the native JSON
document, and two foreign "egg" dialects (one JSON, one YAML) exported by
other panel ecosystems. Foreign documents are translated field by field;
native documents are trusted and only validated.

# Detection

Detection is shape-based, never extension-based:

  - meta.version starting with "PTDL_" marks a foreign document
  - a docker_images object together with variables carrying an
    env_variable field marks a foreign document even without the prefix
  - any other valid JSON is treated as native
  - YAML is only accepted in the foreign shape

# Normalization

Foreign documents go through a fixed pipeline:

Images: the first docker_images entry (in document order, which both
decoders preserve) becomes the primary image; the remaining entries become
labeled image variants.

Variables: the environment-variable field names the variable, falling
back to a sanitized form of the display name. Required is inferred from a
"required" atom in the rule string. The input kind derives from rule
atoms: boolean→checkbox, integer/numeric→number, in:→select, else text.
Pure type atoms (string, boolean, integer, numeric) are stripped from the
retained rules; value constraints like max: and in: are kept.

Startup: ${VAR} and bare $VAR references (uppercase identifiers only)
are rewritten to the {{VAR}} placeholder syntax.

Install script: lowered to a portable bash dialect: line endings
normalized, sh/ash shebangs rewritten to bash, /mnt/server mapped to
{{SERVER_DIR}}, [[ ]] tests lowered to [ ] with == lowered to =, "set -e"
ensured after the shebang, and a preflight package-install block added
when the script uses common tooling (curl, wget, jq, unzip, tar,
ca-certificates) without installing it.

Stop: signal tokens (^C, SIGINT, SIGTERM, SIGKILL) map to a bare signal;
any other string is a console stop command with its leading slash removed.

Built-ins: SERVER_MEMORY, SERVER_PORT, SERVER_IP, and TZ are synthesized
with safe defaults when startup or the install script references them
without a declaration.

# Validation

Every dialect ends in the same check: name, image, and startup are
required, and the Validation error names each missing field so the client
can report all of them at once.

# Usage

	tpl, err := template.Import(raw)
	if err != nil {
		return err // Validation with the reasons
	}
	tpl.ID = uuid.NewString()
	return store.PutTemplate(tpl)

# See Also

  - pkg/types for the canonical Template shape
  - pkg/lifecycle for how Startup and InstallScript placeholders are
    resolved at run time
*/
package template
