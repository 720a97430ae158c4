package models

import (
	"strconv"
	"strings"
)

// TaskType is the routing decision for a query.
type TaskType int

const (
	TaskUnknown TaskType = iota
	TaskReport
	TaskOverview
	TaskCompanyNews
	TaskGeneralNews
	TaskHighlights
)

var taskNames = map[TaskType]string{
	TaskReport:      "report",
	TaskOverview:    "overview",
	TaskCompanyNews: "company_news",
	TaskGeneralNews: "general_news",
	TaskHighlights:  "highlights",
}

func (t TaskType) String() string {
	if name, ok := taskNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t TaskType) Valid() bool {
	return t >= TaskReport && t <= TaskHighlights
}

// ParseTaskType accepts the single-digit codes "1".."5".
func ParseTaskType(s string) (TaskType, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return TaskUnknown, false
	}
	t := TaskType(n)
	return t, t.Valid()
}

// OutputMode selects between human-readable and machine-readable responses.
type OutputMode int

const (
	Programmatic OutputMode = iota
	Interactive
)

func (m OutputMode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "programmatic"
}

// OutputModeFromSource maps the request "source" field to an output mode.
func OutputModeFromSource(source string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "interactive", "cli":
		return Interactive
	default:
		return Programmatic
	}
}

type CompanyRef struct {
	Name   string `json:"company"`
	Ticker string `json:"ticker"`
}

type ChatTurn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// QueryRequest is the transport-level request shape.
type QueryRequest struct {
	Query       string     `json:"query" binding:"required"`
	Source      string     `json:"source,omitempty"`
	ChatHistory []ChatTurn `json:"chat_history,omitempty"`
}

type AnalysisResponse struct {
	Result string `json:"result"`
}

// AgentState flows through the routing graph. The router fills the task and
// entities; exactly one executor fills Response.
type AgentState struct {
	ID          string
	Query       string
	Mode        OutputMode
	ChatHistory []ChatTurn

	TaskType  TaskType
	Company   *CompanyRef
	Companies []CompanyRef
	Topic     string

	Response string
	// Resolved is set when the router already produced the final response.
	Resolved bool
}

func NewAgentState(id string, req QueryRequest) *AgentState {
	return &AgentState{
		ID:          id,
		Query:       strings.TrimSpace(req.Query),
		Mode:        OutputModeFromSource(req.Source),
		ChatHistory: req.ChatHistory,
	}
}
