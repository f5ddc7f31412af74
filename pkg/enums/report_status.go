package enums

// CycleReportStatus marks the outcome of one reconciliation cycle.
type CycleReportStatus string

const (
	ReportStatusSuccess CycleReportStatus = "success"
	ReportStatusError   CycleReportStatus = "error"
)
