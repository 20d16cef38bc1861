package engine

import (
	"fmt"
	"sort"
	"strings"
)

const DefaultModel = "ctc"

type Model struct {
	Name        string
	Description string
}

var registry = map[string]Model{
	"ctc": {
		Name:        "ctc",
		Description: "GigaAM CTC decoder, fastest",
	},
	"rnnt": {
		Name:        "rnnt",
		Description: "GigaAM RNN-T decoder, more accurate",
	},
	"v2_ctc": {
		Name:        "v2_ctc",
		Description: "GigaAM v2 CTC decoder",
	},
	"v2_rnnt": {
		Name:        "v2_rnnt",
		Description: "GigaAM v2 RNN-T decoder",
	},
}

func ModelNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

func ResolveModel(name string) (Model, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultModel
	}

	model, ok := LookupModel(name)
	if !ok {
		return Model{}, fmt.Errorf("unknown model %q (known models: %s)", name, strings.Join(ModelNames(), ", "))
	}
	return model, nil
}
