package controller

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/leadflow-voice-agent/agent/nodes"
)

type turnHandler = func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error)

func (c *Controller) handlers() map[string]turnHandler {
	return map[string]turnHandler{
		nodex.NodeGreet: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Greet(in, c.flow)
		},
		nodex.NodeAnswer: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Answer(ctx, in, c.flow, c.retriever, c.composer, c.recorder)
		},
		nodex.NodeQualify: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Qualify(in, c.flow)
		},
		nodex.NodeCollectName: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.CollectName(in, c.flow)
		},
		nodex.NodeCollectPhone: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.CollectPhone(ctx, in, c.flow)
		},
		nodex.NodeConfirmLead: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.ConfirmLead(ctx, in, c.flow, nodex.LeadSink{
				Leads:    c.leads,
				Sessions: c.store,
				Ledger:   c.ledger,
				Recorder: c.recorder,
			})
		},
		nodex.NodeDecline: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Decline(in, c.flow)
		},
		nodex.NodeClose: func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Close(in, c.flow)
		},
	}
}

func (c *Controller) compileHandleTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.TurnState, error) {
			return nodex.ValidateRequest(in, c.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.LoadOrCreateSession(ctx, in, c.store, c.flow.Language)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_session: %w", err)
	}

	if err := graph.AddLambdaNode("record_user_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.RecordUserTurn(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_user_turn: %w", err)
	}

	if err := graph.AddLambdaNode("classify_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.ClassifyIntent(ctx, in, c.classifier, c.flow.Locale)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_intent: %w", err)
	}

	endNodes := make(map[string]bool, len(nodex.HandlerNodes))
	handlers := c.handlers()
	for _, name := range nodex.HandlerNodes {
		handler, ok := handlers[name]
		if !ok {
			return nil, fmt.Errorf("no handler for node %s", name)
		}
		if err := graph.AddLambdaNode(name, compose.InvokableLambda(handler)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
		endNodes[name] = true
	}

	if err := graph.AddLambdaNode("check_end_call",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.CheckEndCall(in, c.flow, c.recorder)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node check_end_call: %w", err)
	}

	if err := graph.AddLambdaNode("save_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.SaveSession(ctx, in, c.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_session: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	if err := graph.AddBranch("classify_intent", compose.NewGraphBranch(nodex.RouteTurn, endNodes)); err != nil {
		return nil, fmt.Errorf("add branch classify_intent: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_session"},
		{"load_or_create_session", "record_user_turn"},
		{"record_user_turn", "classify_intent"},
	}
	for _, name := range nodex.HandlerNodes {
		edges = append(edges, [2]string{name, "check_end_call"})
	}
	edges = append(edges,
		[2]string{"check_end_call", "save_session"},
		[2]string{"save_session", "finalize_reply"},
		[2]string{"finalize_reply", compose.END},
	)

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("controller.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile controller graph: %w", err)
	}
	return runner, nil
}
