package entities

// DosagePlan is the treatment recommended for one infection level.
type DosagePlan struct {
	Mode           InfectionLevel `json:"mode" bson:"mode"`
	DosageMlPerSqm float64        `json:"dosageMlPerSqm" bson:"dosageMlPerSqm"`
	Pattern        string         `json:"pattern" bson:"pattern"`
}

// RecommendedSpray is the dosage plan attached to a record, plus the area it covers.
type RecommendedSpray struct {
	DosagePlan     `bson:",inline"`
	CoverageEstSqm float64 `json:"coverageEstSqm" bson:"coverageEstSqm"`
}

// Plan returns the dosage part of the recommendation.
func (r RecommendedSpray) Plan() DosagePlan { return r.DosagePlan }
