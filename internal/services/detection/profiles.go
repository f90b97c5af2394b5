package detection

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

// profileRule is one level row in the profiles file.
type profileRule struct {
	DosageMlPerSqm *float64 `yaml:"dosage_ml_per_sqm"`
	Pattern        string   `yaml:"pattern"`
}

// profilesFile is the on-disk layout:
//
//	profiles:
//	  copper-low:
//	    preventive: {dosage_ml_per_sqm: 4, pattern: spot/low}
//	    intensive:  {dosage_ml_per_sqm: 32}
type profilesFile struct {
	Profiles map[string]map[string]profileRule `yaml:"profiles"`
}

// LoadProfiles reads pesticide profiles from a YAML file.
func LoadProfiles(path string) (map[string]Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseProfiles(f)
}

// ParseProfiles decodes profiles; rows left out keep the baseline values.
func ParseProfiles(r io.Reader) (map[string]Profile, error) {
	var pf profilesFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	out := make(map[string]Profile, len(pf.Profiles))
	for id, rows := range pf.Profiles {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("profile without id")
		}
		p := Profile{ID: id, Overrides: make(map[entities.InfectionLevel]entities.DosagePlan, len(rows))}
		for key, row := range rows {
			level, err := entities.ParseInfectionLevel(levelName(key))
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", id, err)
			}
			if level == entities.LevelNone {
				return nil, fmt.Errorf("profile %s: level None cannot be overridden", id)
			}
			plan := BaselinePlan(level)
			if row.DosageMlPerSqm != nil {
				if *row.DosageMlPerSqm < 0 {
					return nil, fmt.Errorf("profile %s/%s: negative dosage", id, key)
				}
				plan.DosageMlPerSqm = *row.DosageMlPerSqm
			}
			if s := strings.TrimSpace(row.Pattern); s != "" {
				plan.Pattern = s
			}
			p.Overrides[level] = plan
		}
		out[id] = p
	}
	return out, nil
}

// levelName turns "targeted" into "Targeted".
func levelName(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}
