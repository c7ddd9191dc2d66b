package model

import "time"

// ScanReport groups the results of one CLI invocation for the report
// writers.
type ScanReport struct {
	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Service is the classification endpoint that produced the verdicts.
	Service string `json:"service"`

	// Results holds one entry per scanned URL, in request order.
	Results []ScanResult `json:"results"`
}

// NewScanReport creates an empty report for the given service endpoint.
func NewScanReport(service string) *ScanReport {
	return &ScanReport{
		GeneratedAt: time.Now(),
		Service:     service,
		Results:     make([]ScanResult, 0),
	}
}

// Add appends a result.
func (r *ScanReport) Add(result ScanResult) {
	r.Results = append(r.Results, result)
}

// Counts returns the number of phishing, safe and failed results.
func (r *ScanReport) Counts() (phishing, safe, failed int) {
	for _, res := range r.Results {
		switch {
		case res.Failed():
			failed++
		case res.IsPhishing:
			phishing++
		default:
			safe++
		}
	}
	return phishing, safe, failed
}

// HasPhishing reports whether any result is a phishing verdict.
func (r *ScanReport) HasPhishing() bool {
	phishing, _, _ := r.Counts()
	return phishing > 0
}
