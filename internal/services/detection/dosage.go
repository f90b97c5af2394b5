package detection

import (
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

// DefaultProfileID is used when a request names no pesticide profile.
const DefaultProfileID = "default"

// BaselinePlan is the shipped level-only dosage table.
func BaselinePlan(level entities.InfectionLevel) entities.DosagePlan {
	switch level {
	case entities.LevelPreventive:
		return entities.DosagePlan{Mode: level, DosageMlPerSqm: 5, Pattern: "spot/low"}
	case entities.LevelTargeted:
		return entities.DosagePlan{Mode: level, DosageMlPerSqm: 15, Pattern: "localized/focused"}
	case entities.LevelIntensive:
		return entities.DosagePlan{Mode: level, DosageMlPerSqm: 40, Pattern: "full-coverage/high"}
	case entities.LevelNone:
		fallthrough
	default:
		return entities.DosagePlan{Mode: entities.LevelNone, DosageMlPerSqm: 0, Pattern: "none"}
	}
}

// UnknownProfilePolicy decides what happens to requests naming a profile we do not know.
type UnknownProfilePolicy string

const (
	ProfileFallback UnknownProfilePolicy = "fallback"
	ProfileReject   UnknownProfilePolicy = "reject"
)

// ParseUnknownProfilePolicy accepts "fallback" (also the empty string) and "reject".
func ParseUnknownProfilePolicy(s string) (UnknownProfilePolicy, error) {
	switch UnknownProfilePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProfileFallback:
		return ProfileFallback, nil
	case ProfileReject:
		return ProfileReject, nil
	}
	return "", fmt.Errorf("unknown profile policy %q", s)
}

// Profile overrides baseline rows for some levels. None is never overridden.
type Profile struct {
	ID        string
	Overrides map[entities.InfectionLevel]entities.DosagePlan
}

// PlanFor returns the profile row for a level.
func (p Profile) PlanFor(level entities.InfectionLevel) entities.DosagePlan {
	base := BaselinePlan(level)
	if base.Mode == entities.LevelNone {
		return base
	}
	if o, ok := p.Overrides[level]; ok {
		o.Mode = base.Mode
		return o
	}
	return base
}

// Planner resolves a pesticide profile and looks up the dosage row.
type Planner struct {
	profiles map[string]Profile
	policy   UnknownProfilePolicy
}

// NewPlanner builds a planner; the default profile is always present and falls back to the baseline table.
func NewPlanner(profiles map[string]Profile, policy UnknownProfilePolicy) *Planner {
	m := make(map[string]Profile, len(profiles)+1)
	for id, p := range profiles {
		p.ID = id
		m[id] = p
	}
	if _, ok := m[DefaultProfileID]; !ok {
		m[DefaultProfileID] = Profile{ID: DefaultProfileID}
	}
	if policy == "" {
		policy = ProfileFallback
	}
	return &Planner{profiles: m, policy: policy}
}

// Resolve returns the id of the profile that will be applied.
func (p *Planner) Resolve(profileID string) (string, error) {
	id := strings.TrimSpace(profileID)
	if id == "" {
		return DefaultProfileID, nil
	}
	if _, ok := p.profiles[id]; ok {
		return id, nil
	}
	if p.policy == ProfileReject {
		return "", invalid("pesticideProfileId", "unknown profile %q", id)
	}
	return DefaultProfileID, nil
}

// Plan returns the dosage row for level under the resolved profile.
func (p *Planner) Plan(level entities.InfectionLevel, profileID string) (entities.DosagePlan, string, error) {
	id, err := p.Resolve(profileID)
	if err != nil {
		return entities.DosagePlan{}, "", err
	}
	return p.profiles[id].PlanFor(level), id, nil
}

// ProfileIDs lists the configured profiles.
func (p *Planner) ProfileIDs() []string {
	out := make([]string, 0, len(p.profiles))
	for id := range p.profiles {
		out = append(out, id)
	}
	return out
}
