package agent

import (
	"fmt"
	"strings"

	"buildmatic/internal/tools"
)

// Type is one of the fixed subagent behaviour profiles.
type Type string

const (
	Explore Type = "explore"
	Code    Type = "code"
	Plan    Type = "plan"
)

// Tier selects which configured model serves a profile.
type Tier int

const (
	TierPrimary Tier = iota
	TierFast
)

func (t Tier) String() string {
	if t == TierFast {
		return "fast"
	}
	return "primary"
}

// ToolSet is either AllTools or a NamedSubset.
type ToolSet interface {
	Allows(id tools.ID) bool
	isToolSet()
}

// AllTools grants the whole subagent catalogue (tools.BaseIDs).
type AllTools struct{}

func (AllTools) Allows(id tools.ID) bool {
	for _, base := range tools.BaseIDs() {
		if base == id {
			return true
		}
	}
	return false
}

func (AllTools) isToolSet() {}

// NamedSubset grants exactly the listed tools.
type NamedSubset map[tools.ID]struct{}

func Subset(ids ...tools.ID) NamedSubset {
	s := make(NamedSubset, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s NamedSubset) Allows(id tools.ID) bool {
	_, ok := s[id]
	return ok
}

func (NamedSubset) isToolSet() {}

type Profile struct {
	Type        Type
	Description string
	Tools       ToolSet
	Prompt      string
	Tier        Tier
}

var profiles = map[Type]Profile{
	Explore: {
		Type:        Explore,
		Description: "Read-only agent for exploring code, finding files, searching",
		Tools:       Subset(tools.Bash, tools.ReadFile),
		Prompt:      "You are an exploration agent. Search and analyze, but never modify files. Return a concise summary.",
		Tier:        TierFast,
	},
	Code: {
		Type:        Code,
		Description: "Full agent for implementing features and fixing bugs",
		Tools:       AllTools{},
		Prompt:      "You are a coding agent. Implement the requested changes efficiently.",
		Tier:        TierPrimary,
	},
	Plan: {
		Type:        Plan,
		Description: "Planning agent for designing implementation strategies",
		Tools:       Subset(tools.Bash, tools.ReadFile),
		Prompt:      "You are a planning agent. Analyze the codebase and output a numbered implementation plan. Do NOT make changes.",
		Tier:        TierFast,
	},
}

// Types lists the agent types in display order.
func Types() []Type {
	return []Type{Explore, Code, Plan}
}

func ParseType(name string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := profiles[t]; !ok {
		return "", fmt.Errorf("unknown agent type %q", name)
	}
	return t, nil
}

func Lookup(t Type) (Profile, bool) {
	p, ok := profiles[t]
	return p, ok
}

// Options renders the table for the Task tool's agent_type enum.
func Options() []tools.AgentOption {
	out := make([]tools.AgentOption, 0, len(profiles))
	for _, t := range Types() {
		out = append(out, tools.AgentOption{Name: string(t), Description: profiles[t].Description})
	}
	return out
}
