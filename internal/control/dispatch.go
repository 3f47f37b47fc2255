package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loopctl/loopctl/internal/engine"
	"github.com/loopctl/loopctl/internal/types"
)

// Dispatch builds the Handler a control Server runs against, translating
// each Command.Type into the matching engine operation. It is the single
// place the wire protocol meets internal/engine's Go API.
func Dispatch(eng *engine.Engine) Handler {
	return func(cmd Command) (json.RawMessage, error) {
		ctx := context.Background()

		switch cmd.Type {
		case "create":
			var iss types.Issue
			if len(cmd.Issue) > 0 {
				if err := json.Unmarshal(cmd.Issue, &iss); err != nil {
					return nil, fmt.Errorf("decode issue: %w", err)
				}
			}
			l, err := eng.CreateLoop(engine.CreateParams{
				Agent:           cmd.Agent,
				Issue:           iss,
				RepoRoot:        cmd.RepoRoot,
				SkipPermissions: cmd.SkipPerms,
			})
			if err != nil {
				return nil, err
			}
			return marshal(l)

		case "start":
			if err := eng.StartLoop(ctx, cmd.LoopID); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "pause":
			if err := eng.PauseLoop(cmd.LoopID); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "resume":
			if eng.CanResumeInSession(cmd.LoopID) {
				if err := eng.ResumeLoop(ctx, cmd.LoopID); err != nil {
					return nil, err
				}
			} else {
				if err := eng.ResumePausedLoop(ctx, cmd.LoopID); err != nil {
					return nil, err
				}
			}
			return loopPayload(eng, cmd.LoopID)

		case "stop":
			if err := eng.StopLoop(cmd.LoopID); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "retry":
			if err := eng.RetryLoop(ctx, cmd.LoopID); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "intervene":
			if err := eng.SendIntervention(cmd.LoopID, cmd.Message); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "discard":
			if err := eng.DiscardPausedLoop(cmd.LoopID); err != nil {
				return nil, err
			}
			return json.RawMessage(`{}`), nil

		case "setCriterion":
			if err := eng.SetCriterionByOperator(ctx, cmd.LoopID, cmd.N, cmd.Completed); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "closeIssue":
			if err := eng.CloseIssue(ctx, cmd.LoopID, cmd.Message); err != nil {
				return nil, err
			}
			return loopPayload(eng, cmd.LoopID)

		case "markOrphans":
			n, err := eng.MarkOrphanedPausedLoops()
			if err != nil {
				return nil, err
			}
			return marshal(map[string]int{"count": n})

		case "status":
			if cmd.LoopID != "" {
				return loopPayload(eng, cmd.LoopID)
			}
			doc, err := eng.Document()
			if err != nil {
				return nil, err
			}
			return marshal(doc)

		default:
			return nil, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}

func loopPayload(eng *engine.Engine, loopID string) (json.RawMessage, error) {
	l, err := eng.Loop(loopID)
	if err != nil {
		return nil, err
	}
	return marshal(l)
}

func marshal(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response data: %w", err)
	}
	return b, nil
}
