package recognizers

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/memory"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

// ErrMissingID is returned when a cross-trained child has no id.
var ErrMissingID = errors.New("cross-trained recognizer requires an id")

// CrossTrainedRecognizerSet runs recognizers that were trained to defer
// to each other with DeferToRecognizer_<id> intents and resolves their
// answers into a single consensus, a ChooseIntent ambiguity or None.
type CrossTrainedRecognizerSet struct {
	IDValue     string
	Recognizers []Recognizer
	Telemetry   telemetry.Client
}

// NewCrossTrainedRecognizerSet creates a set over rs. Order matters: it
// decides which recognizer establishes consensus first.
func NewCrossTrainedRecognizerSet(id string, rs ...Recognizer) *CrossTrainedRecognizerSet {
	return &CrossTrainedRecognizerSet{IDValue: id, Recognizers: rs}
}

func (s *CrossTrainedRecognizerSet) ID() string { return s.IDValue }

func (s *CrossTrainedRecognizerSet) Recognize(ctx context.Context, act *activity.Activity) (*Result, error) {
	for i, r := range s.Recognizers {
		if r.ID() == "" {
			return nil, fmt.Errorf("recognizer %d: %w", i, ErrMissingID)
		}
	}

	results, err := recognizeAll(ctx, act, s.Recognizers)
	if err != nil {
		return nil, err
	}
	res := s.resolve(textOf(act), results)
	trackResult(ctx, s.Telemetry, "CrossTrainedRecognizerSet", s.IDValue, res)
	return res, nil
}

func (s *CrossTrainedRecognizerSet) resolve(text string, results []*Result) *Result {
	byID := make(map[string]int, len(results))
	for i, r := range s.Recognizers {
		if _, ok := byID[r.ID()]; !ok {
			byID[r.ID()] = i
		}
	}

	consensus := ""
	for i, r := range s.Recognizers {
		claim := r.ID()
		intent, _ := results[i].TopIntent()

		if isRedirect(intent) {
			terminal, cyclic := s.follow(claim, redirectID(intent), results, byID)
			if cyclic {
				if consensus == "" {
					return NoneResult(text)
				}
				continue
			}
			idx, ok := byID[terminal]
			if !ok {
				// Deferring to nobody is the same as not claiming.
				continue
			}
			intent, _ = results[idx].TopIntent()
			claim = terminal
		}

		if intent == None {
			continue
		}
		switch {
		case consensus == "":
			consensus = claim
		case consensus != claim:
			return s.chooseIntent(text, results)
		}
	}

	if consensus != "" {
		return results[byID[consensus]]
	}

	none := NoneResult(text)
	for _, res := range results {
		deepMerge(none.Entities, res.Entities)
	}
	return none
}

// follow walks redirects from target to the recognizer that answers with a
// non-redirect intent and returns its id. cyclic is set when the chain
// revisits a recognizer, start included.
func (s *CrossTrainedRecognizerSet) follow(start, target string, results []*Result, byID map[string]int) (terminal string, cyclic bool) {
	visited := map[string]bool{start: true}
	cur := target
	for {
		if visited[cur] {
			return "", true
		}
		visited[cur] = true
		idx, ok := byID[cur]
		if !ok {
			return cur, false
		}
		intent, _ := results[idx].TopIntent()
		if !isRedirect(intent) {
			return cur, false
		}
		cur = redirectID(intent)
	}
}

func (s *CrossTrainedRecognizerSet) chooseIntent(text string, results []*Result) *Result {
	var candidates []Candidate
	for i, r := range s.Recognizers {
		intent, score := results[i].TopIntent()
		if intent == None || isRedirect(intent) {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:     r.ID(),
			Intent: intent,
			Score:  score,
			Result: results[i],
		})
	}
	if len(candidates) == 0 {
		return NoneResult(text)
	}

	res := &Result{
		Text:       text,
		Intents:    map[string]IntentScore{ChooseIntent: {Score: 1}},
		Entities:   map[string]any{},
		Candidates: candidates,
	}
	if v, err := memory.Normalize(candidates); err == nil {
		res.Entities["candidates"] = v
	}
	return res
}
