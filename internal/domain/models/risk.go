package models

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type RiskCategory string

const (
	RiskCategoryData      RiskCategory = "data"
	RiskCategoryModel     RiskCategory = "model"
	RiskCategoryMarket    RiskCategory = "market"
	RiskCategoryExecution RiskCategory = "execution"
)

type RiskFactor struct {
	Name        string       `json:"name"`
	Category    RiskCategory `json:"category"`
	Severity    float64      `json:"severity"`
	Description string       `json:"description"`
}

// RiskAssessment is the FMEA result attached to every signal.
type RiskAssessment struct {
	Level         RiskLevel    `json:"risk_level"`
	Score         float64      `json:"risk_score"`
	Severity      float64      `json:"severity"`
	Occurrence    float64      `json:"occurrence"`
	Detection     float64      `json:"detection"`
	Factors       []RiskFactor `json:"factors"`
	Mitigations   []string     `json:"mitigations"`
	StaleData     bool         `json:"stale_data"`
	DriftDetected bool         `json:"drift_detected"`
	ShadowAgreed  bool         `json:"shadow_agreement"`
}
