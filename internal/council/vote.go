package council

import (
	"strings"
	"unicode/utf8"
)

// Strategy names how a consensus answer was chosen.
type Strategy string

// Strategies, in precedence order.
const (
	StrategySingleModel     Strategy = "single_model"
	StrategyMajorityVote    Strategy = "majority_vote"
	StrategyLongestResponse Strategy = "longest_response"
)

// Candidate is one successful model answer taking part in a vote.
type Candidate struct {
	Model    string
	Response string
}

// Decision is the outcome of a vote.
type Decision struct {
	Consensus  string   `json:"consensus"`
	VotedModel string   `json:"votedModel"`
	Strategy   Strategy `json:"strategy"`
}

// Vote reduces candidates to one answer.
//
// A single candidate wins outright. Otherwise candidates are grouped by their trimmed,
// lower-cased text; a group holding more than half of the candidates wins and its first
// member is returned. Without a majority the longest response wins, measured in
// characters. Every tie is broken in favour of the candidate or group seen first.
//
// Vote returns false when there are no candidates.
func Vote(candidates []Candidate) (Decision, bool) {
	switch len(candidates) {
	case 0:
		return Decision{}, false
	case 1:
		return Decision{
			Consensus:  candidates[0].Response,
			VotedModel: candidates[0].Model,
			Strategy:   StrategySingleModel,
		}, true
	}

	type group struct {
		first int
		count int
	}
	groups := map[string]*group{}
	order := make([]*group, 0, len(candidates))
	for i, c := range candidates {
		key := normalize(c.Response)
		g, ok := groups[key]
		if !ok {
			g = &group{first: i}
			groups[key] = g
			order = append(order, g)
		}
		g.count++
	}

	best := order[0]
	for _, g := range order[1:] {
		if g.count > best.count {
			best = g
		}
	}

	if best.count*2 > len(candidates) {
		winner := candidates[best.first]
		return Decision{
			Consensus:  winner.Response,
			VotedModel: winner.Model,
			Strategy:   StrategyMajorityVote,
		}, true
	}

	longest := 0
	for i := 1; i < len(candidates); i++ {
		if utf8.RuneCountInString(candidates[i].Response) > utf8.RuneCountInString(candidates[longest].Response) {
			longest = i
		}
	}
	return Decision{
		Consensus:  candidates[longest].Response,
		VotedModel: candidates[longest].Model,
		Strategy:   StrategyLongestResponse,
	}, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
