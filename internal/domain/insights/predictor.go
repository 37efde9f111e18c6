package insights

import "math/rand"

// DemandForecast is what the demand predictor returns for one drug.
type DemandForecast struct {
	Forecast7Days  float64
	Forecast30Days float64
	StockoutRisk   string
}

// RiskScore is what the risk predictor returns for one patient.
type RiskScore struct {
	Score float64
	Level string
}

// FraudAssessment is what the fraud predictor returns for one claim.
type FraudAssessment struct {
	Score          float64
	Anomaly        bool
	ReviewRequired bool
}

// Predictor is the prediction collaborator. The analytics handlers only
// require forecast-shaped answers; nothing here promises statistical
// validity, and callers must not assume any.
type Predictor interface {
	PredictDrugDemand(usage DrugUsage) DemandForecast
	ScorePatientRisk(activity PatientActivity) RiskScore
	DetectFraud(claim ClaimActivity) FraudAssessment
}

// RulePredictor implements Predictor with the platform's rule arithmetic:
// linear extrapolation for demand, visit-count thresholds for risk, and
// amount/turnaround heuristics for fraud. The random source only perturbs
// the fraud score and the stockout bucket.
type RulePredictor struct {
	rng *rand.Rand
}

// NewRulePredictor creates a predictor seeded for reproducible runs.
func NewRulePredictor(seed int64) *RulePredictor {
	return &RulePredictor{rng: rand.New(rand.NewSource(seed))}
}

func (p *RulePredictor) PredictDrugDemand(usage DrugUsage) DemandForecast {
	avg := usage.AvgDailyUsage
	if avg <= 0 {
		avg = 10 // default baseline for drugs with no dispensing history
	}

	risk := "NONE"
	switch r := p.rng.Float64(); {
	case r < 0.1:
		risk = "HIGH"
	case r < 0.3:
		risk = "MEDIUM"
	case r < 0.6:
		risk = "LOW"
	}

	return DemandForecast{
		Forecast7Days:  avg * 7,
		Forecast30Days: avg * 30,
		StockoutRisk:   risk,
	}
}

func (p *RulePredictor) ScorePatientRisk(activity PatientActivity) RiskScore {
	score := float64(activity.VisitCount * 5)
	if activity.VisitCount > 0 {
		score += 20 * float64(activity.EmergencyVisits) / float64(activity.VisitCount)
	}
	score = clamp(score, 0, 100)

	level := "LOW"
	switch {
	case activity.VisitCount > 5:
		level = "HIGH"
	case activity.VisitCount > 2:
		level = "MEDIUM"
	}

	return RiskScore{Score: score, Level: level}
}

func (p *RulePredictor) DetectFraud(claim ClaimActivity) FraudAssessment {
	anomaly := claim.AvgAmount > 0 && claim.Amount > claim.AvgAmount*3

	score := p.rng.Float64() * 20
	if anomaly {
		score += 50
	}
	if claim.ProcessingDays < 1 {
		score += 30
	}

	return FraudAssessment{
		Score:          clamp(score, 0, 100),
		Anomaly:        anomaly,
		ReviewRequired: claim.Amount > 100000,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
