package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Dialect identifies the document flavor handed to Import.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectNative
	DialectForeignJSON
	DialectForeignYAML
)

// metaVersionPrefix marks the widely shared egg export format.
const metaVersionPrefix = "PTDL_"

// Detect classifies a raw document by shape. JSON documents carrying the
// egg meta-version prefix, or a docker_images object plus variables with
// an env_variable field, are foreign; other valid JSON is native. YAML is
// only accepted in the foreign shape.
func Detect(raw []byte) Dialect {
	var probe struct {
		Meta struct {
			Version string `json:"version" yaml:"version"`
		} `json:"meta" yaml:"meta"`
		DockerImages map[string]flexString `json:"docker_images" yaml:"docker_images"`
		Variables    []struct {
			EnvVariable string `json:"env_variable" yaml:"env_variable"`
		} `json:"variables" yaml:"variables"`
	}

	if err := json.Unmarshal(raw, &probe); err == nil {
		if foreignShape(probe.Meta.Version, len(probe.DockerImages), hasEnvField(probe.Variables)) {
			return DialectForeignJSON
		}
		return DialectNative
	}

	probe.Meta.Version = ""
	probe.DockerImages = nil
	probe.Variables = nil
	if err := yaml.Unmarshal(raw, &probe); err == nil {
		if foreignShape(probe.Meta.Version, len(probe.DockerImages), hasEnvField(probe.Variables)) {
			return DialectForeignYAML
		}
	}
	return DialectUnknown
}

func foreignShape(metaVersion string, imageCount int, hasEnv bool) bool {
	if strings.HasPrefix(metaVersion, metaVersionPrefix) {
		return true
	}
	return imageCount > 0 && hasEnv
}

func hasEnvField(vars []struct {
	EnvVariable string `json:"env_variable" yaml:"env_variable"`
}) bool {
	for _, v := range vars {
		if v.EnvVariable != "" {
			return true
		}
	}
	return false
}

// Import parses a template document in any accepted dialect and returns
// the canonical template. Foreign dialects are normalized: images split
// into primary plus variants, variables mapped, startup and install script
// rewritten, stop tokens resolved, and referenced built-in variables
// synthesized. Documents missing required fields fail with a Validation
// error naming every missing field.
func Import(raw []byte) (*types.Template, error) {
	switch Detect(raw) {
	case DialectNative:
		return importNative(raw)
	case DialectForeignJSON:
		var doc foreignDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "parse template document", err)
		}
		return fromForeign(&doc)
	case DialectForeignYAML:
		var doc foreignDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errdefs.Wrap(errdefs.KindValidation, "parse template document", err)
		}
		return fromForeign(&doc)
	default:
		return nil, errdefs.Validation("unrecognized template document")
	}
}

// nativeDoc is the canonical wire shape accepted on the import endpoint.
type nativeDoc struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	ImageVariants []struct {
		Label string `json:"label"`
		Image string `json:"image"`
	} `json:"imageVariants"`
	InstallImage  string `json:"installImage"`
	Startup       string `json:"startup"`
	StopCommand   string `json:"stopCommand"`
	StopSignal    string `json:"stopSignal"`
	InstallScript string `json:"installScript"`
	Variables     []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Default     string `json:"default"`
		Required    bool   `json:"required"`
		Input       string `json:"input"`
		Rules       string `json:"rules"`
	} `json:"variables"`
	Ports           []int   `json:"ports"`
	DefaultMemoryMB int64   `json:"defaultMemoryMb"`
	DefaultCPUCores float64 `json:"defaultCpuCores"`
	DefaultDiskMB   int64   `json:"defaultDiskMb"`
}

func importNative(raw []byte) (*types.Template, error) {
	var doc nativeDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "parse template document", err)
	}

	t := &types.Template{
		Name:            doc.Name,
		Description:     doc.Description,
		Image:           doc.Image,
		InstallImage:    doc.InstallImage,
		Startup:         doc.Startup,
		StopCommand:     doc.StopCommand,
		StopSignal:      types.StopSignal(doc.StopSignal),
		InstallScript:   doc.InstallScript,
		Ports:           doc.Ports,
		DefaultMemoryMB: doc.DefaultMemoryMB,
		DefaultCPUCores: doc.DefaultCPUCores,
		DefaultDiskMB:   doc.DefaultDiskMB,
	}
	if t.StopSignal == "" {
		t.StopSignal = types.SignalTerm
	}
	for _, v := range doc.ImageVariants {
		t.ImageVariants = append(t.ImageVariants, types.ImageVariant{Label: v.Label, Image: v.Image})
	}
	for _, v := range doc.Variables {
		input := types.InputKind(v.Input)
		if input == "" {
			input = types.InputText
		}
		t.Variables = append(t.Variables, types.TemplateVariable{
			Name:        v.Name,
			Description: v.Description,
			Default:     v.Default,
			Required:    v.Required,
			Input:       input,
			Rules:       v.Rules,
		})
	}
	return t, validate(t)
}

// foreignDoc is the shared shape of both foreign dialects.
type foreignDoc struct {
	Meta struct {
		Version string `json:"version" yaml:"version"`
	} `json:"meta" yaml:"meta"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description" yaml:"description"`
	DockerImages orderedImages `json:"docker_images" yaml:"docker_images"`
	Startup      string        `json:"startup" yaml:"startup"`
	Config       struct {
		Stop string `json:"stop" yaml:"stop"`
	} `json:"config" yaml:"config"`
	Scripts struct {
		Installation struct {
			Script     string `json:"script" yaml:"script"`
			Container  string `json:"container" yaml:"container"`
			Entrypoint string `json:"entrypoint" yaml:"entrypoint"`
		} `json:"installation" yaml:"installation"`
	} `json:"scripts" yaml:"scripts"`
	Variables []foreignVariable `json:"variables" yaml:"variables"`
}

type foreignVariable struct {
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description" yaml:"description"`
	EnvVariable  string     `json:"env_variable" yaml:"env_variable"`
	DefaultValue flexString `json:"default_value" yaml:"default_value"`
	Rules        string     `json:"rules" yaml:"rules"`
}

// ImagePair is one labeled container image from a foreign docker_images
// object, in document order.
type ImagePair struct {
	Label string
	Image string
}

// orderedImages preserves the document order of docker_images so "first
// entry becomes the primary image" is well defined. Plain map decoding
// would lose it.
type orderedImages []ImagePair

func (o *orderedImages) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("docker_images: expected object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("docker_images: expected string key")
		}
		var image string
		if err := dec.Decode(&image); err != nil {
			return err
		}
		*o = append(*o, ImagePair{Label: key, Image: image})
	}
	_, err = dec.Token()
	return err
}

func (o *orderedImages) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("docker_images: expected mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		*o = append(*o, ImagePair{
			Label: value.Content[i].Value,
			Image: value.Content[i+1].Value,
		})
	}
	return nil
}

// flexString tolerates scalar defaults that foreign documents carry as
// numbers or booleans.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case bool:
		if t {
			*f = "1"
		} else {
			*f = "0"
		}
	case float64:
		*f = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*f = flexString(fmt.Sprintf("%v", t))
	}
	return nil
}

func (f *flexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar value")
	}
	*f = flexString(value.Value)
	return nil
}

func fromForeign(doc *foreignDoc) (*types.Template, error) {
	t := &types.Template{
		Name:          doc.Name,
		Description:   doc.Description,
		Startup:       RewriteStartup(doc.Startup),
		InstallImage:  doc.Scripts.Installation.Container,
		InstallScript: RewriteInstallScript(doc.Scripts.Installation.Script),
	}

	if len(doc.DockerImages) > 0 {
		t.Image = doc.DockerImages[0].Image
		for _, pair := range doc.DockerImages[1:] {
			t.ImageVariants = append(t.ImageVariants, types.ImageVariant{
				Label: pair.Label,
				Image: pair.Image,
			})
		}
	}

	t.StopCommand, t.StopSignal = NormalizeStop(doc.Config.Stop)

	for _, v := range doc.Variables {
		t.Variables = append(t.Variables, normalizeVariable(v))
	}
	synthesizeBuiltins(t)

	return t, validate(t)
}

// typeAtoms are the rule tokens that only describe the value's type; they
// are consumed into the input kind and stripped from the retained rules.
var typeAtoms = map[string]bool{
	"string":  true,
	"boolean": true,
	"integer": true,
	"numeric": true,
}

func normalizeVariable(v foreignVariable) types.TemplateVariable {
	name := v.EnvVariable
	if name == "" {
		name = envName(v.Name)
	}

	atoms := strings.Split(v.Rules, "|")
	input := types.InputText
	required := false
	kept := make([]string, 0, len(atoms))
	for _, atom := range atoms {
		trimmed := strings.TrimSpace(atom)
		if trimmed == "" {
			continue
		}
		switch {
		case trimmed == "boolean":
			input = types.InputCheckbox
		case trimmed == "integer" || trimmed == "numeric":
			input = types.InputNumber
		case strings.HasPrefix(trimmed, "in:"):
			input = types.InputSelect
		}
		if strings.HasPrefix(trimmed, "required") {
			required = true
		}
		if !typeAtoms[trimmed] {
			kept = append(kept, trimmed)
		}
	}

	return types.TemplateVariable{
		Name:        name,
		Description: v.Description,
		Default:     string(v.DefaultValue),
		Required:    required,
		Input:       input,
		Rules:       strings.Join(kept, "|"),
	}
}

// envName turns a display name into an environment-variable identifier.
func envName(display string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(display) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// builtinDefaults are synthesized when startup or the install script
// references them without a declaration.
var builtinDefaults = []types.TemplateVariable{
	{Name: "SERVER_MEMORY", Description: "Memory limit in MB", Default: "1024", Input: types.InputNumber},
	{Name: "SERVER_PORT", Description: "Primary listen port", Default: "25565", Input: types.InputNumber},
	{Name: "SERVER_IP", Description: "Bind address", Default: "0.0.0.0", Input: types.InputText},
	{Name: "TZ", Description: "Time zone", Default: "UTC", Input: types.InputText},
}

func synthesizeBuiltins(t *types.Template) {
	declared := make(map[string]bool, len(t.Variables))
	for _, v := range t.Variables {
		declared[v.Name] = true
	}
	haystack := t.Startup + "\n" + t.InstallScript
	for _, builtin := range builtinDefaults {
		if declared[builtin.Name] {
			continue
		}
		if strings.Contains(haystack, builtin.Name) {
			t.Variables = append(t.Variables, builtin)
		}
	}
}

func validate(t *types.Template) error {
	var missing []string
	if t.Name == "" {
		missing = append(missing, "name")
	}
	if t.Image == "" {
		missing = append(missing, "image")
	}
	if t.Startup == "" {
		missing = append(missing, "startup")
	}
	if len(missing) > 0 {
		return errdefs.Validation("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}
