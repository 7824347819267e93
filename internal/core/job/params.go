package job

// Params are the saved filter parameters of one stage.
type Params struct {
	Threads   int     `json:"threads" yaml:"threads"`
	Identity  float64 `json:"identity" yaml:"identity"`
	Coverage  float64 `json:"coverage" yaml:"coverage"`
	SkipBlast bool    `json:"skip_blast" yaml:"skip_blast"`
	Cache     bool    `json:"cache" yaml:"cache"`
}

// Configs maps each configured stage to its parameters.
type Configs map[Stage]Params

// Missing lists the stages without a saved configuration, in the given order.
func (c Configs) Missing(stages []Stage) []Stage {
	var missing []Stage
	for _, s := range stages {
		if _, ok := c[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// Merge returns a copy of c with every entry of other layered on top.
func (c Configs) Merge(other Configs) Configs {
	out := make(Configs, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
