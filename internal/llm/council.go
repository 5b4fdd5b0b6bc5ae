package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/council"
)

// Member is one model taking part in a council.
type Member struct {
	// Name identifies the member in replies and errors.
	Name string
	// Model is the upstream model id sent to the provider.
	Model    string
	Provider Provider
}

// MemberResult is the outcome of asking one member.
type MemberResult struct {
	Model string `json:"model"`
	Reply *Reply `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Council is a Provider asking several members the same request concurrently. After
// every member has settled, the first reply (in member order) carrying tool calls wins;
// without tool calls the non-empty answers are put to a vote.
type Council struct {
	members []Member
	logger  zerolog.Logger
}

// NewCouncil creates a council over members.
func NewCouncil(logger zerolog.Logger, members ...Member) *Council {
	return &Council{members: members, logger: logger}
}

// Complete asks every member and reduces the replies. It fails with ALL_MODELS_FAILED
// when no member replied.
func (c *Council) Complete(ctx context.Context, req Request) (Reply, error) {
	if len(c.members) == 0 {
		return Reply{}, mcp.NewError(mcp.KindNoModelSelected, "council has no members")
	}

	results := make([]MemberResult, len(c.members))

	var g errgroup.Group
	for i, m := range c.members {
		g.Go(func() error {
			r := req
			r.Model = m.Model
			reply, err := m.Provider.Complete(ctx, r)
			if err != nil {
				c.logger.Debug().Err(err).Str("model", m.Name).Msg("council member failed")
				results[i] = MemberResult{Model: m.Name, Error: err.Error()}
				return nil
			}
			reply.Model = m.Name
			results[i] = MemberResult{Model: m.Name, Reply: &reply}
			return nil
		})
	}
	_ = g.Wait()

	var valid []Reply
	for _, r := range results {
		if r.Reply != nil {
			valid = append(valid, *r.Reply)
		}
	}
	if len(valid) == 0 {
		return Reply{}, mcp.Errorf(mcp.KindAllModelsFailed, "all %d council models failed", len(c.members)).
			WithDetails(results)
	}

	for _, r := range valid {
		if len(r.ToolCalls) > 0 {
			return r, nil
		}
	}

	candidates := make([]council.Candidate, 0, len(valid))
	byModel := make(map[string]Reply, len(valid))
	for _, r := range valid {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		candidates = append(candidates, council.Candidate{Model: r.Model, Response: r.Content})
		if _, seen := byModel[r.Model]; !seen {
			byModel[r.Model] = r
		}
	}

	decision, ok := council.Vote(candidates)
	if !ok {
		return valid[0], nil
	}
	c.logger.Debug().
		Str("strategy", string(decision.Strategy)).
		Str("voted_model", decision.VotedModel).
		Msg("council reply chosen")

	winner := byModel[decision.VotedModel]
	winner.Content = decision.Consensus
	return winner, nil
}
