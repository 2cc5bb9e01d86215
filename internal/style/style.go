// Package style manages generation style presets. Presets are written
// as CUE files and validated against an embedded schema before use, so
// a malformed preset is rejected at load time rather than surfacing as
// a confusing server error mid-generation.
package style

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema constrains preset files. Kept in CUE rather than Go so the
// same definition can validate presets edited outside this program.
const schema = `
#Style: {
	name:        string & !=""
	checkpoint:  string & !=""
	vae:         string | *""
	prompt:      string | *""
	negative:    string | *""
	steps:       int & >0 & <=200 | *20
	cfg_scale:   number & >=1 & <=30 | *7.0
	sampler:     string | *"dpmpp_2m"
	loras: [...{name: string & !="", strength: number & >=-2 & <=2 | *1.0}] | *[]
}
`

// Lora is an auxiliary model applied on top of the checkpoint.
type Lora struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// Style is one generation preset.
type Style struct {
	Name       string  `json:"name"`
	Checkpoint string  `json:"checkpoint"`
	VAE        string  `json:"vae"`
	Prompt     string  `json:"prompt"`
	Negative   string  `json:"negative"`
	Steps      int     `json:"steps"`
	CFGScale   float64 `json:"cfg_scale"`
	Sampler    string  `json:"sampler"`
	Loras      []Lora  `json:"loras"`
}

// Default is the preset used when no style file is available.
func Default() Style {
	return Style{
		Name:       "Default",
		Checkpoint: "default",
		Steps:      20,
		CFGScale:   7.0,
		Sampler:    "dpmpp_2m",
	}
}

// Parse validates a single CUE preset source against the schema and
// decodes it.
func Parse(filename, source string) (Style, error) {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return Style{}, fmt.Errorf("compile style schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Style"))

	val := ctx.CompileString(source, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return Style{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Style{}, fmt.Errorf("validate %s: %w", filename, err)
	}

	var s Style
	if err := unified.Decode(&s); err != nil {
		return Style{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return s, nil
}

// Load reads all *.cue presets from dir, sorted by name. A missing or
// empty directory yields just the default preset.
func Load(dir string) ([]Style, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Style{Default()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read styles dir: %w", err)
	}

	var styles []Style
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cue") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read style: %w", err)
		}
		s, err := Parse(path, string(source))
		if err != nil {
			return nil, err
		}
		styles = append(styles, s)
	}
	if len(styles) == 0 {
		return []Style{Default()}, nil
	}
	sort.Slice(styles, func(i, j int) bool { return styles[i].Name < styles[j].Name })
	return styles, nil
}

// FilterSupported keeps the styles whose checkpoint is in the
// server-reported model list. Order is preserved.
func FilterSupported(styles []Style, checkpoints []string) []Style {
	known := make(map[string]bool, len(checkpoints))
	for _, c := range checkpoints {
		known[c] = true
	}
	var out []Style
	for _, s := range styles {
		if known[s.Checkpoint] {
			out = append(out, s)
		}
	}
	return out
}
