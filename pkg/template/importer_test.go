package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
)

const eggJSON = `{
  "meta": {"version": "PTDL_v2"},
  "name": "Paper",
  "description": "High performance Minecraft server.",
  "docker_images": {
    "Java 21": "ghcr.io/parkervcp/yolks:java_21",
    "Java 17": "ghcr.io/parkervcp/yolks:java_17",
    "Java 11": "ghcr.io/parkervcp/yolks:java_11"
  },
  "startup": "java -Xms128M -Xmx${SERVER_MEMORY}M -jar ${SERVER_JARFILE}",
  "config": {"stop": "/stop"},
  "scripts": {
    "installation": {
      "script": "#!/bin/ash\ncd /mnt/server\ncurl -o server.jar $DOWNLOAD_URL\nif [[ \"$BUILD\" == \"latest\" ]]; then\n  echo latest\nfi",
      "container": "ghcr.io/parkervcp/installers:alpine",
      "entrypoint": "ash"
    }
  },
  "variables": [
    {
      "name": "Server Jar File",
      "description": "The jar to run.",
      "env_variable": "SERVER_JARFILE",
      "default_value": "server.jar",
      "rules": "required|string|max:32"
    },
    {
      "name": "Build Channel",
      "description": "Release channel.",
      "env_variable": "BUILD",
      "default_value": "latest",
      "rules": "required|in:latest,experimental"
    },
    {
      "name": "Enable Query",
      "description": "",
      "env_variable": "ENABLE_QUERY",
      "default_value": true,
      "rules": "boolean"
    },
    {
      "name": "Maximum Players",
      "description": "",
      "env_variable": "MAX_PLAYERS",
      "default_value": 20,
      "rules": "integer|between:1,200"
    }
  ]
}`

func TestDetect(t *testing.T) {
	assert.Equal(t, DialectForeignJSON, Detect([]byte(eggJSON)))
	assert.Equal(t, DialectNative, Detect([]byte(`{"name":"x","image":"alpine","startup":"run"}`)))

	// Foreign signature without the meta prefix still counts.
	noMeta := `{"docker_images":{"A":"img:a"},"variables":[{"env_variable":"X"}],"name":"n","startup":"s"}`
	assert.Equal(t, DialectForeignJSON, Detect([]byte(noMeta)))

	yamlDoc := "meta:\n  version: PTDL_v2\nname: n\n"
	assert.Equal(t, DialectForeignYAML, Detect([]byte(yamlDoc)))

	assert.Equal(t, DialectUnknown, Detect([]byte("{{{{")))
}

func TestImportForeignJSON(t *testing.T) {
	tpl, err := Import([]byte(eggJSON))
	require.NoError(t, err)

	assert.Equal(t, "Paper", tpl.Name)

	// First docker_images entry is the primary image, the rest become
	// labeled variants in document order.
	assert.Equal(t, "ghcr.io/parkervcp/yolks:java_21", tpl.Image)
	require.Len(t, tpl.ImageVariants, 2)
	assert.Equal(t, types.ImageVariant{Label: "Java 17", Image: "ghcr.io/parkervcp/yolks:java_17"}, tpl.ImageVariants[0])
	assert.Equal(t, types.ImageVariant{Label: "Java 11", Image: "ghcr.io/parkervcp/yolks:java_11"}, tpl.ImageVariants[1])

	assert.Equal(t, "ghcr.io/parkervcp/installers:alpine", tpl.InstallImage)
	assert.Equal(t, "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar {{SERVER_JARFILE}}", tpl.Startup)

	// Stop command keeps the console word and drops the slash.
	assert.Equal(t, "stop", tpl.StopCommand)
	assert.Equal(t, types.SignalTerm, tpl.StopSignal)

	// Install script went through the rewriter.
	assert.True(t, strings.HasPrefix(tpl.InstallScript, "#!/bin/bash\n"))
	assert.Contains(t, tpl.InstallScript, "cd {{SERVER_DIR}}")
	assert.Contains(t, tpl.InstallScript, `if [ "$BUILD" = "latest" ]; then`)
}

func TestImportForeignVariables(t *testing.T) {
	tpl, err := Import([]byte(eggJSON))
	require.NoError(t, err)

	byName := map[string]types.TemplateVariable{}
	for _, v := range tpl.Variables {
		byName[v.Name] = v
	}

	jar := byName["SERVER_JARFILE"]
	assert.Equal(t, "The jar to run.", jar.Description)
	assert.Equal(t, "server.jar", jar.Default)
	assert.True(t, jar.Required)
	assert.Equal(t, types.InputText, jar.Input)
	assert.Equal(t, "required|max:32", jar.Rules, "type atoms stripped, the rest kept")

	build := byName["BUILD"]
	assert.True(t, build.Required)
	assert.Equal(t, types.InputSelect, build.Input)
	assert.Equal(t, "required|in:latest,experimental", build.Rules)

	query := byName["ENABLE_QUERY"]
	assert.False(t, query.Required)
	assert.Equal(t, types.InputCheckbox, query.Input)
	assert.Equal(t, "1", query.Default, "boolean default coerced")
	assert.Equal(t, "", query.Rules)

	players := byName["MAX_PLAYERS"]
	assert.Equal(t, types.InputNumber, players.Input)
	assert.Equal(t, "20", players.Default, "numeric default coerced")
	assert.Equal(t, "between:1,200", players.Rules)
}

func TestImportSynthesizesBuiltins(t *testing.T) {
	tpl, err := Import([]byte(eggJSON))
	require.NoError(t, err)

	byName := map[string]types.TemplateVariable{}
	for _, v := range tpl.Variables {
		byName[v.Name] = v
	}

	// SERVER_MEMORY is referenced by startup but never declared.
	mem, ok := byName["SERVER_MEMORY"]
	require.True(t, ok, "SERVER_MEMORY should be synthesized")
	assert.Equal(t, "1024", mem.Default)
	assert.Equal(t, types.InputNumber, mem.Input)
	assert.False(t, mem.Required)

	// Unreferenced built-ins stay out.
	_, ok = byName["TZ"]
	assert.False(t, ok)
	_, ok = byName["SERVER_IP"]
	assert.False(t, ok)
}

func TestImportForeignYAMLKeepsImageOrder(t *testing.T) {
	doc := `meta:
  version: PTDL_v2
name: Factorio
description: Headless factory server.
docker_images:
  Stable: factoriotools/factorio:stable
  Experimental: factoriotools/factorio:latest
startup: ./bin/x64/factorio --port $SERVER_PORT
config:
  stop: ^C
scripts:
  installation:
    script: |
      #!/bin/sh
      cd /mnt/server
      wget -O factorio.tar.xz $URL
    container: debian:bookworm-slim
    entrypoint: bash
variables:
  - name: Download URL
    description: Release tarball.
    env_variable: URL
    default_value: https://factorio.com/get-download/stable/headless/linux64
    rules: required|string
`
	tpl, err := Import([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "factoriotools/factorio:stable", tpl.Image)
	require.Len(t, tpl.ImageVariants, 1)
	assert.Equal(t, "Experimental", tpl.ImageVariants[0].Label)

	assert.Equal(t, "./bin/x64/factorio --port {{SERVER_PORT}}", tpl.Startup)
	assert.Equal(t, "", tpl.StopCommand)
	assert.Equal(t, types.SignalInt, tpl.StopSignal)

	// wget used without a package install: preflight block present.
	assert.Contains(t, tpl.InstallScript, "command -v apt-get")
}

func TestImportNameFallsBackToDisplayName(t *testing.T) {
	doc := `{
	  "docker_images": {"Default": "alpine:3"},
	  "name": "Thing",
	  "startup": "run",
	  "variables": [
	    {"name": "World Name", "env_variable": "WORLD", "default_value": "w", "rules": "string"},
	    {"name": "Seed Value!", "default_value": "", "rules": "string"}
	  ]
	}`
	tpl, err := Import([]byte(doc))
	require.NoError(t, err)

	names := []string{tpl.Variables[0].Name, tpl.Variables[1].Name}
	assert.Equal(t, []string{"WORLD", "SEED_VALUE"}, names)
}

func TestImportMissingRequiredFields(t *testing.T) {
	doc := `{"meta": {"version": "PTDL_v2"}, "description": "no name, image, startup"}`
	_, err := Import([]byte(doc))
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "image")
	assert.Contains(t, err.Error(), "startup")
}

func TestImportNative(t *testing.T) {
	doc := `{
	  "name": "Valheim",
	  "description": "Dedicated server",
	  "image": "ghcr.io/example/valheim:latest",
	  "imageVariants": [{"label": "Edge", "image": "ghcr.io/example/valheim:edge"}],
	  "startup": "./valheim_server.x86_64 -port {{SERVER_PORT}}",
	  "stopCommand": "",
	  "stopSignal": "SIGINT",
	  "installScript": "#!/bin/bash\nset -e\necho ok",
	  "variables": [
	    {"name": "WORLD", "description": "World name", "default": "Dedicated", "required": true, "rules": "max:20"}
	  ],
	  "ports": [2456, 2457],
	  "defaultMemoryMb": 4096,
	  "defaultCpuCores": 2,
	  "defaultDiskMb": 10240
	}`
	tpl, err := Import([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "Valheim", tpl.Name)
	assert.Equal(t, types.SignalInt, tpl.StopSignal)
	require.Len(t, tpl.Variables, 1)
	assert.Equal(t, types.InputText, tpl.Variables[0].Input, "input defaults to text")
	assert.Equal(t, []int{2456, 2457}, tpl.Ports)
	assert.Equal(t, int64(4096), tpl.DefaultMemoryMB)

	// Native documents are trusted: no script rewriting applied.
	assert.Equal(t, "#!/bin/bash\nset -e\necho ok", tpl.InstallScript)
}

func TestImportUnknownDocument(t *testing.T) {
	_, err := Import([]byte("{{{{"))
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SERVER_JAR_FILE", envName("Server Jar File"))
	assert.Equal(t, "SEED_VALUE", envName("Seed Value!"))
	assert.Equal(t, "A_B_2", envName("a b-2"))
}
