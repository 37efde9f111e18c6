package insights

import "time"

// DrugUsage is the per-(hospital, drug) dispensing aggregate read from the
// fact tables and fed to the demand predictor.
type DrugUsage struct {
	HospitalID     string
	DrugID         string
	TotalDispensed int
	AvgDailyUsage  float64
}

// PatientActivity is the per-patient visit aggregate feeding risk scoring.
type PatientActivity struct {
	PatientID       string
	VisitCount      int
	EmergencyVisits int
}

// ClaimActivity is one open claim with the context fraud detection needs.
type ClaimActivity struct {
	ClaimID        string
	Provider       string
	Amount         float64
	AvgAmount      float64
	ProcessingDays int
}

// DrugForecast is the stored forecast row, one per (date, hospital, drug).
type DrugForecast struct {
	AnalysisDate   time.Time
	HospitalID     string
	DrugID         string
	TotalDispensed int
	AvgDailyUsage  float64
	Forecast7Days  float64
	Forecast30Days float64
	StockoutRisk   string
}

// PatientRisk is the stored risk row, one per patient, overwritten on each
// scoring run.
type PatientRisk struct {
	PatientID      string
	Category       string
	Score          float64
	Level          string
	VisitCount     int
	LastCalculated time.Time
	NextReview     time.Time
}

// FraudFlag is the stored fraud assessment, one per claim.
type FraudFlag struct {
	ClaimID        string
	Score          float64
	Anomaly        bool
	ReviewRequired bool
}
