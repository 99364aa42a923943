package agents

import "sort"

// Set maps skill ids to implementations.
type Set struct {
	byID map[string]Agent
}

func NewSet(agents ...Agent) *Set {
	s := &Set{byID: make(map[string]Agent, len(agents))}
	for _, agent := range agents {
		s.byID[agent.Descriptor().SkillID] = agent
	}
	return s
}

// Builtin is the static table of every agent this service can run.
func Builtin() *Set {
	return NewSet(
		StaleTaskStrategist{},
		BillReminder{},
		EnergyTaskSuggester{},
		SleepCoach{},
		GiftAgent{},
		CoupleSync{},
	)
}

func (s *Set) Lookup(skillID string) (Agent, bool) {
	agent, ok := s.byID[skillID]
	return agent, ok
}

func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
