package dialogue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/analysis/intent"
	"github.com/zhouzirui/serene/backend/internal/metrics"
	dialogueModel "github.com/zhouzirui/serene/backend/internal/model/dialogue"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
)

var errNoMessages = errors.New("conversation has no messages")

const nodeClassify = "classify"

// answeringPhases are the phases a turn can be routed to.
var answeringPhases = []dialogueModel.Phase{
	dialogueModel.PhaseCrisis,
	dialogueModel.PhaseStructuredTherapy,
	dialogueModel.PhaseGeneral,
}

// Orchestrator is the per-turn state machine
// start -> classify -> {crisis | structured_therapy | general} -> end,
// compiled as an eino graph.
type Orchestrator struct {
	runnable compose.Runnable[*dialogueModel.State, *dialogueModel.State]
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewOrchestrator compiles the graph. strategies must cover every answering
// phase.
func NewOrchestrator(ctx context.Context, strategies Strategies, logger *zap.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{logger: logger.Named("dialogue"), metrics: m}

	g := compose.NewGraph[*dialogueModel.State, *dialogueModel.State]()
	if err := g.AddLambdaNode(nodeClassify, compose.InvokableLambda(o.classify)); err != nil {
		return nil, fmt.Errorf("failed to add classify node: %w", err)
	}
	if err := g.AddEdge(compose.START, nodeClassify); err != nil {
		return nil, fmt.Errorf("failed to connect classify node: %w", err)
	}

	endNodes := make(map[string]bool, len(answeringPhases))
	for _, phase := range answeringPhases {
		strategy, ok := strategies[phase]
		if !ok || strategy == nil {
			return nil, fmt.Errorf("no strategy registered for phase %s", phase)
		}
		key := strategyNode(phase)
		if err := g.AddLambdaNode(key, compose.InvokableLambda(o.respondWith(phase, strategy))); err != nil {
			return nil, fmt.Errorf("failed to add %s node: %w", key, err)
		}
		if err := g.AddEdge(key, compose.END); err != nil {
			return nil, fmt.Errorf("failed to connect %s node: %w", key, err)
		}
		endNodes[key] = true
	}

	branch := compose.NewGraphBranch(func(_ context.Context, state *dialogueModel.State) (string, error) {
		return strategyNode(state.Phase), nil
	}, endNodes)
	if err := g.AddBranch(nodeClassify, branch); err != nil {
		return nil, fmt.Errorf("failed to add phase branch: %w", err)
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("dialogue"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile dialogue graph: %w", err)
	}
	o.runnable = runnable
	return o, nil
}

// Run executes one turn. The returned state carries the routed phase and the
// input messages plus exactly one trailing assistant reply. The input state is
// not modified. Strategy failures surface as ai.ErrGeneration.
func (o *Orchestrator) Run(ctx context.Context, initial *dialogueModel.State) (*dialogueModel.State, error) {
	if initial == nil || len(initial.Messages) == 0 {
		return nil, ai.Fail("dialogue", errNoMessages)
	}

	started := time.Now()
	out, err := o.runnable.Invoke(ctx, initial)
	if err != nil {
		return nil, ai.Fail("dialogue", err)
	}

	o.logger.Info("turn completed",
		zap.String("turn_id", out.TurnID),
		zap.String("phase", string(out.Phase)),
		zap.Int("messages", len(out.Messages)),
		zap.Duration("elapsed", time.Since(started)))
	return out, nil
}

func (o *Orchestrator) classify(_ context.Context, in *dialogueModel.State) (*dialogueModel.State, error) {
	state := in.Clone()
	current := state.Phase
	if current == "" {
		current = dialogueModel.PhaseStart
	}
	state.Phase = intent.Classify(state.LatestText(), current)

	o.logger.Debug("intent classified",
		zap.String("turn_id", state.TurnID),
		zap.String("from", string(current)),
		zap.String("to", string(state.Phase)))
	o.metrics.RecordTurn(string(state.Phase))
	return state, nil
}

func (o *Orchestrator) respondWith(phase dialogueModel.Phase, strategy Strategy) func(context.Context, *dialogueModel.State) (*dialogueModel.State, error) {
	return func(ctx context.Context, state *dialogueModel.State) (*dialogueModel.State, error) {
		msg, err := strategy.Respond(ctx, state.Messages, state.MemoryContext)
		if err != nil {
			o.metrics.RecordGenerationFailure(string(phase))
			o.logger.Warn("strategy failed",
				zap.String("turn_id", state.TurnID),
				zap.String("phase", string(phase)),
				zap.Error(err))
			return nil, ai.Fail(string(phase), err)
		}
		state.Messages = append(state.Messages, msg)
		return state, nil
	}
}

func strategyNode(phase dialogueModel.Phase) string {
	return "respond_" + string(phase)
}
