package oracle

import (
	"fmt"
	"strings"
	"text/template"
)

// Stage is one of the four decision phases. Its string form labels
// transcripts and metrics.
type Stage string

const (
	StageDirectory Stage = "directory"
	StageBoolean   Stage = "boolean"
	StageChoice    Stage = "choice"
	StageValue     Stage = "value"
)

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageDirectory, StageBoolean, StageChoice, StageValue}
}

// PromptInput fills a stage template. Content is the batch of tree lines.
type PromptInput struct {
	Knowledge string
	Target    string
	Content   string
}

// BootSafety is embedded in every template. The pipeline does not enforce it.
const BootSafety = "I also have to guarantee that the OS still boots successfully after applying your selection."

const directoryTemplate = `KNOWLEDGE = {{.Knowledge}}

TARGET = {{.Target}}

DIRECTORIES = {{.Content}}

Q: I want to explore the config options related to TARGET in the Linux kernel configuration. Please choose as many directories in DIRECTORIES that concern TARGET as you can. You can reference the knowledge in KNOWLEDGE. {{.Safety}} Answer in pure text without any explanation. Give the directory names with their index from DIRECTORIES, one directory per line, like this:
[1 directory_name_1]
[2 directory_name_2]
....
[n directory_name_n]
`

const booleanTemplate = `KNOWLEDGE = {{.Knowledge}}

TARGET = {{.Target}}

CONFIGS = {{.Content}}

Q: I want to explore the config options related to TARGET in the Linux kernel configuration. Please choose as many configs in CONFIGS that concern TARGET as you can. For each config related to TARGET, determine whether enabling it will increase or decrease TARGET. If it increases TARGET, output [CONFIG increase]. If it decreases TARGET, output [CONFIG decrease]. If a config is not related to TARGET, output [CONFIG - cannot determine impact without specific context]. You can reference the knowledge in KNOWLEDGE. {{.Safety}} Answer in pure text without any explanation. Use the config names given in CONFIGS, one config per line, like this:
[config_name_1 increase]
[config_name_2 decrease]
....
[config_name_n increase]
`

const choiceTemplate = `KNOWLEDGE = {{.Knowledge}}

TARGET = {{.Target}}

CONFIGS = {{.Content}}

Q: I want to explore the config options related to TARGET in the Linux kernel configuration. The CONFIGS are the mutually exclusive choices of one config, and you need to choose the one most likely to help TARGET. Give me exactly one config from CONFIGS. You can reference the knowledge in KNOWLEDGE. {{.Safety}} Answer in pure text without any explanation, like this:
[config_name]
`

const valueTemplate = `Here is value options information: {{.Knowledge}}
TARGET = {{.Target}}

I'm looking for the Linux kernel's menuconfig options that could potentially affect TARGET. I have listed some numeric config options from menuconfig, along with their legal value ranges.
For each option, please select a value that may help improve TARGET. If the option is not related to TARGET, reset it to the default value.
{{.Safety}}
Config input format:
[option name] (default value)
Value output format:
[option name] (recommended value)
For instance, if you are given:
'maximum CPU number(1=>2 2=>4)  (cpunum) (1)
Your response would be:
'maximum CPU number(1=>2 2=>4)  (cpunum) (2)
Because when the CPU number is higher, the speed is usually better.
Attention! Provide your recommended values without extra explanations or additional details, and do not add units next to the numbers.
Below are the numeric config options for your recommendations: {{.Content}}
`

var templates = map[Stage]*template.Template{ //nolint:gochecknoglobals // parsed once
	StageDirectory: template.Must(template.New("directory").Parse(directoryTemplate)),
	StageBoolean:   template.Must(template.New("boolean").Parse(booleanTemplate)),
	StageChoice:    template.Must(template.New("choice").Parse(choiceTemplate)),
	StageValue:     template.Must(template.New("value").Parse(valueTemplate)),
}

// Render produces the query text for stage.
func Render(stage Stage, in PromptInput) (string, error) {
	tmpl, ok := templates[stage]
	if !ok {
		return "", fmt.Errorf("unknown stage %q", stage)
	}
	data := struct {
		PromptInput
		Safety string
	}{in, BootSafety}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", stage, err)
	}
	return sb.String(), nil
}
