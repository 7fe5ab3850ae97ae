package operations

// Config declares the phases, progress hints, and cancellability of one
// operation type. Configs are immutable after process start.
type Config struct {
	Type          Type
	Title         string
	Phases        []string
	ProgressHints []string
	Cancellable   bool
}

// Registry maps operation types to their configs.
type Registry map[Type]Config

// Lookup returns the config for the given type.
func (r Registry) Lookup(t Type) (Config, bool) {
	cfg, ok := r[t]
	return cfg, ok
}

// BuiltinRegistry returns the static operation table.
func BuiltinRegistry() Registry {
	return Registry{
		TypeParsePRD: {
			Type:  TypeParsePRD,
			Title: "Parsing PRD",
			Phases: []string{
				"Reading PRD",
				"Generating tasks",
				"Writing tasks",
			},
			ProgressHints: []string{
				"Reading the requirements document...",
				"Identifying discrete units of work...",
				"Ordering tasks by dependency...",
				"Large PRDs can take a few minutes.",
			},
			Cancellable: true,
		},
		TypeAnalyzeComplexity: {
			Type:  TypeAnalyzeComplexity,
			Title: "Analyzing complexity",
			Phases: []string{
				"Loading tasks",
				"Scoring tasks",
				"Writing report",
			},
			ProgressHints: []string{
				"Scoring each task for implementation effort...",
				"Checking dependency fan-out...",
				"Recommending expansion candidates...",
			},
			Cancellable: true,
		},
		TypeExpandTask: {
			Type:  TypeExpandTask,
			Title: "Expanding task",
			Phases: []string{
				"Loading task",
				"Generating subtasks",
				"Saving subtasks",
			},
			ProgressHints: []string{
				"Breaking the task into subtasks...",
				"Sizing subtasks for single sessions...",
			},
			Cancellable: true,
		},
		TypeExpandAll: {
			Type:  TypeExpandAll,
			Title: "Expanding all tasks",
			Phases: []string{
				"Loading tasks",
				"Expanding tasks",
				"Saving subtasks",
			},
			ProgressHints: []string{
				"Expanding each pending task in turn...",
				"Skipping tasks that already have subtasks...",
				"This runs one AI call per task and can take a while.",
			},
			Cancellable: true,
		},
	}
}
