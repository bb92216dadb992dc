package storage

import "ammlab/internal/model"

// Storage defines a sink for scenario reports.
type Storage interface {
	PutReportBatch(reports []model.ScenarioReport) error
}

// Discard drops every report.
type Discard struct{}

func (Discard) PutReportBatch([]model.ScenarioReport) error { return nil }
