package consts

// Graph node keys.
const (
	Router      = "router"
	Report      = "report"
	Overview    = "overview"
	CompanyNews = "company_news"
	GeneralNews = "general_news"
	Highlights  = "highlights"
)

const GraphName = "stella"

// User-facing fallback messages.
const (
	MsgNoCompany        = "No company found in the query."
	MsgNoCompanies      = "No companies found in the query."
	MsgNoNews           = "No recent news available."
	MsgReportError      = "Error generating report."
	MsgOverviewError    = "Error generating overview."
	MsgNewsError        = "Error fetching news."
	MsgHighlightsError  = "Error generating highlights."
	MsgProcessingError  = "An error occurred during processing."
	MsgPriceUnavailable = "N/A"
)
