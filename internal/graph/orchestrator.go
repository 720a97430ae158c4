package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/agents"
	"github.com/dyike/stella/internal/models"
)

type nodeFunc = func(ctx context.Context, s *models.AgentState) (*models.AgentState, error)

var taskNodes = map[models.TaskType]string{
	models.TaskReport:      consts.Report,
	models.TaskOverview:    consts.Overview,
	models.TaskCompanyNews: consts.CompanyNews,
	models.TaskGeneralNews: consts.GeneralNews,
	models.TaskHighlights:  consts.Highlights,
}

// taskHandOff picks the executor for the routed task, or ends the run when
// the router already answered.
func taskHandOff(ctx context.Context, s *models.AgentState) (string, error) {
	if s.Resolved {
		return compose.END, nil
	}
	if next, ok := taskNodes[s.TaskType]; ok {
		return next, nil
	}
	return consts.GeneralNews, nil
}

// NewOrchestrator compiles router -> one executor -> END.
func NewOrchestrator(ctx context.Context, router *agents.Router, exec *agents.Executors) (compose.Runnable[*models.AgentState, *models.AgentState], error) {
	g := compose.NewGraph[*models.AgentState, *models.AgentState]()

	nodes := []struct {
		key string
		fn  nodeFunc
	}{
		{consts.Router, router.Route},
		{consts.Report, exec.Report},
		{consts.Overview, exec.Overview},
		{consts.CompanyNews, exec.CompanyNews},
		{consts.GeneralNews, exec.GeneralNews},
		{consts.Highlights, exec.Highlights},
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, compose.InvokableLambda(n.fn), compose.WithNodeName(n.key)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n.key, err)
		}
	}

	outMap := map[string]bool{compose.END: true}
	for _, key := range taskNodes {
		outMap[key] = true
	}
	if err := g.AddEdge(compose.START, consts.Router); err != nil {
		return nil, err
	}
	if err := g.AddBranch(consts.Router, compose.NewGraphBranch(taskHandOff, outMap)); err != nil {
		return nil, err
	}
	for _, key := range taskNodes {
		if err := g.AddEdge(key, compose.END); err != nil {
			return nil, err
		}
	}

	return g.Compile(ctx,
		compose.WithGraphName(consts.GraphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
}
