package cli

var (
	PrintSummary   = printSummary
	GetStoreConfig = getStoreConfig
)
