package config

// Target is a named optimization goal for the kernel being tuned.
// Goal is substituted into prompts; Description is shown to the user.
type Target struct {
	Key         string
	Goal        string
	Description string
}

// Targets lists the UnixBench presets in display order.
//
//nolint:gochecknoglobals // static preset table
var Targets = []Target{
	{
		Key:         "dhrystone-whetstone",
		Goal:        "the Dhrystone and Whetstone scores in UnixBench",
		Description: "Enhance the Dhrystone and Whetstone scores in UnixBench. The former represents integer processing capability, while the latter represents floating-point processing capability.",
	},
	{
		Key:         "file-copy",
		Goal:        "the File Copy score in Unixbench, and the file copy throughput",
		Description: "Enhance the File Copy score in Unixbench.",
	},
	{
		Key:         "execl",
		Goal:        "the Execl Throughput score in Unixbench. The execl is a system call in Unix and Linux systems, used to execute a new program.",
		Description: "Enhance the Execl Throughput score in Unixbench.",
	},
	{
		Key:         "pipe-context-switch",
		Goal:        "the Pipe-based Context Switching score in Unixbench",
		Description: "Enhance the Pipe-based Context Switching score in Unixbench.",
	},
	{
		Key:         "unixbench-total",
		Goal:        "the unixbench total score",
		Description: "Enhance the UnixBench total score.",
	},
	{
		Key:         "process-creation",
		Goal:        "the Process Creation score in Unixbench and the process creation throughput",
		Description: "Enhance the Process Creation score in Unixbench, improve the process creation ability of the OS.",
	},
	{
		Key:         "syscall",
		Goal:        "the System Call score in Unixbench and the system call throughput",
		Description: "Enhance the System Call score in Unixbench, improve the system call ability of the OS.",
	},
	{
		Key:         "shell-scripts",
		Goal:        "the Shell Scripts score in Unixbench and the Shell Script throughput",
		Description: "Enhance the Shell Scripts score in Unixbench.",
	},
}

// LookupTarget finds a preset by key.
func LookupTarget(key string) (Target, bool) {
	for i := range Targets {
		if Targets[i].Key == key {
			return Targets[i], true
		}
	}
	return Target{}, false
}

// TargetKeys returns every preset key in display order.
func TargetKeys() []string {
	keys := make([]string, len(Targets))
	for i := range Targets {
		keys[i] = Targets[i].Key
	}
	return keys
}
