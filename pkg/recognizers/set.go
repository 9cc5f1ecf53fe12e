package recognizers

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

// TelemetryResultEvent is tracked once per composed recognition.
const TelemetryResultEvent = "RecognizerResult"

// recognizeAll runs every recognizer concurrently and returns the results
// in input order. The first error cancels the rest.
func recognizeAll(ctx context.Context, act *activity.Activity, rs []Recognizer) ([]*Result, error) {
	results := make([]*Result, len(rs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range rs {
		g.Go(func() error {
			res, err := r.Recognize(gctx, act)
			if err != nil {
				return fmt.Errorf("recognizer %s: %w", r.ID(), err)
			}
			if res == nil {
				res = NoneResult(textOf(act))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func trackResult(ctx context.Context, client telemetry.Client, kind, id string, res *Result) {
	if client == nil {
		return
	}
	intent, score := res.TopIntent()
	client.TrackEvent(ctx, TelemetryResultEvent, map[string]string{
		"recognizer": kind,
		"id":         id,
		"text":       res.Text,
		"intent":     intent,
		"score":      strconv.FormatFloat(score, 'f', -1, 64),
	})
}

// RecognizerSet unions the results of its children. Each intent keeps its
// highest score, entities of the same name are concatenated and properties
// from later children overwrite earlier ones.
type RecognizerSet struct {
	IDValue     string
	Recognizers []Recognizer
	Telemetry   telemetry.Client
}

// NewRecognizerSet creates a set over rs.
func NewRecognizerSet(id string, rs ...Recognizer) *RecognizerSet {
	return &RecognizerSet{IDValue: id, Recognizers: rs}
}

func (s *RecognizerSet) ID() string { return s.IDValue }

func (s *RecognizerSet) Recognize(ctx context.Context, act *activity.Activity) (*Result, error) {
	results, err := recognizeAll(ctx, act, s.Recognizers)
	if err != nil {
		return nil, err
	}

	text := textOf(act)
	merged := &Result{
		Text:     text,
		Intents:  map[string]IntentScore{},
		Entities: map[string]any{},
	}
	for _, res := range results {
		if res.AlteredText != "" {
			merged.AlteredText = res.AlteredText
		}
		for name, score := range res.Intents {
			if cur, ok := merged.Intents[name]; !ok || score.Score > cur.Score {
				merged.Intents[name] = score
			}
		}
		mergeEntities(merged.Entities, res.Entities)
		for k, v := range res.Properties {
			if merged.Properties == nil {
				merged.Properties = map[string]any{}
			}
			merged.Properties[k] = v
		}
		if res.Sentiment != nil {
			merged.Sentiment = res.Sentiment
		}
	}
	if len(merged.Intents) == 0 {
		merged.Intents[None] = IntentScore{Score: 1}
	}

	trackResult(ctx, s.Telemetry, "RecognizerSet", s.IDValue, merged)
	return merged, nil
}
