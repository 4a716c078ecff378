package reports

// Report is one named JSON fragment of an outgoing payload.
type Report interface {
	ReportName() string
	DumpReport() ([]byte, error)
}
