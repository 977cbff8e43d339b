package crew

import (
	"sort"

	"github.com/swarmlabs/hive/pkg/models"
)

// Registry maps crew names to their definitions. Built once at process
// start and passed down; there is no ambient global registry.
type Registry struct {
	defs map[string]Definition
}

// RegistryConfig tunes the standard definitions.
type RegistryConfig struct {
	// CodingIterations is the coding crew's retry ceiling.
	CodingIterations int
	// DefaultIterations is every other crew's retry ceiling.
	DefaultIterations int
}

// NewRegistry builds the standard crew set: coding, data analysis,
// content writing, and research.
func NewRegistry(cfg RegistryConfig) *Registry {
	coding := cfg.CodingIterations
	if coding < 1 {
		coding = 5
	}
	other := cfg.DefaultIterations
	if other < 1 {
		other = 3
	}

	r := &Registry{defs: make(map[string]Definition)}
	r.register(Definition{
		Name:           "coding_crew",
		Role:           "coder",
		ArtifactType:   models.ArtifactCode,
		MaxIterations:  coding,
		Executes:       true,
		ReflectEnabled: true,
		ProposeSystem:  codingProposePrompt,
		ReviewSystem:   codingReviewPrompt,
		ReflectSystem:  reflectPrompt,
	})
	r.register(Definition{
		Name:           "data_crew",
		Role:           "analyst",
		ArtifactType:   models.ArtifactReport,
		MaxIterations:  other,
		ReflectEnabled: true,
		ProposeSystem:  dataProposePrompt,
		ReviewSystem:   dataReviewPrompt,
		ReflectSystem:  reflectPrompt,
	})
	r.register(Definition{
		Name:           "content_crew",
		Role:           "writer",
		ArtifactType:   models.ArtifactReport,
		MaxIterations:  other,
		ReflectEnabled: true,
		ProposeSystem:  contentProposePrompt,
		ReviewSystem:   contentReviewPrompt,
		ReflectSystem:  reflectPrompt,
	})
	r.register(Definition{
		Name:          "researcher",
		Role:          "researcher",
		ArtifactType:  models.ArtifactReport,
		MaxIterations: other,
		Researches:    true,
		ProposeSystem: researchProposePrompt,
		ReviewSystem:  researchReviewPrompt,
	})
	return r
}

func (r *Registry) register(def Definition) {
	r.defs[def.Name] = def
}

// Get returns the definition for name and whether it exists.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all registered crew names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
