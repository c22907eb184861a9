// Package scape provides the worlds policies are evaluated in. A scape
// owns the environment mechanics and the evaluation cycle; the engine
// hands it the members of one tournament slot and reads fitness back off
// the policies.
package scape

import (
	"context"

	"gephyra/internal/agent"
)

// EvalPlan describes one evaluation cycle for a tournament slot.
type EvalPlan struct {
	// Environments is the number of episodes per evaluation. With one
	// episode the members are placed together; with more, even episodes
	// run the first member alone and odd episodes pair it with a partner.
	Environments int
	// ConsistentPartner selects the second member as the partner for
	// paired episodes. When false a transient random-genome partner is
	// built from the generation index instead.
	ConsistentPartner bool
	// Generation seeds transient partners so a given generation always
	// meets the same stranger.
	Generation int
	// GenerationSpan offsets the seed of the second transient partner so
	// later paired episodes meet a different stranger.
	GenerationSpan int
	// PartnerOptions configures transient partners (schema, awareness,
	// neuromodulation, field size).
	PartnerOptions agent.Options
}

// Evaluator is the seam between the engine and a concrete world.
type Evaluator interface {
	Name() string
	Rows() int
	Cols() int
	Evaluate(ctx context.Context, members []*agent.Policy, plan EvalPlan) error
}
