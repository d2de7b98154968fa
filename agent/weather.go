package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
)

// WeatherOntology tags weather exchanges.
const WeatherOntology = "weather"

// Advisor produces a human-readable weather summary for a destination.
type Advisor interface {
	Advise(ctx context.Context, place string, days int) (acl.WeatherNote, map[string]any, error)
}

// StaticAdvisor is the offline advisor used when no forecast backend is
// configured: generic packing advice keyed on trip length.
type StaticAdvisor struct{}

func (StaticAdvisor) Advise(_ context.Context, place string, days int) (acl.WeatherNote, map[string]any, error) {
	text := fmt.Sprintf("No live forecast for %s; pack for changeable weather.", place)
	if days >= 7 {
		text += " For a week or longer, plan for at least one rainy day."
	}
	return acl.WeatherNote{
			Title: fmt.Sprintf("Weather outlook: %s", place),
			Text:  text,
		}, map[string]any{
			"provider": "static",
			"days":     days,
		}, nil
}

// Weather serves REQUEST/WEATHER_ADVICE with an INFORM/WEATHER_ADVICE
// carrying a note and provider metadata. Backend failures reply
// FAILURE/ERROR instead; the advice payload never travels under FAILURE.
type Weather struct {
	rt      *Runtime
	advisor Advisor
}

// NewWeather builds the weather agent; a nil advisor falls back to the
// static one.
func NewWeather(name string, advisor Advisor, opts Options) *Weather {
	if advisor == nil {
		advisor = StaticAdvisor{}
	}
	w := &Weather{advisor: advisor}
	w.rt = NewRuntime(name, w, opts)
	return w
}

// Runtime exposes the runtime for supervision.
func (w *Weather) Runtime() *Runtime { return w.rt }

// Announce registers the weather capability with the registry.
func (w *Weather) Announce(ctx context.Context, registryAddr string) {
	w.rt.AnnounceCapability(ctx, registryAddr, []acl.ProvidesEntry{
		{Ontology: WeatherOntology, Types: []string{acl.TypeWeatherAdvice}},
	})
}

// HandleEnvelope implements Handler.
func (w *Weather) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	req, ok := env.Payload.(acl.WeatherAdvicePayload)
	if !ok || env.Performative != acl.Request {
		return nil
	}
	if req.Place == "" {
		return w.rt.SendFailure(ctx, from, env.ConversationID, acl.ErrValidation,
			map[string]any{"err": "WEATHER_ADVICE request requires a place"})
	}
	days := req.Days
	if days <= 0 {
		days = 3
	}

	note, meta, err := w.advisor.Advise(ctx, req.Place, days)
	if err != nil {
		w.rt.Logger().Warn("advisor failed",
			zap.String("place", req.Place), zap.Error(err))
		return w.rt.SendFailure(ctx, from, env.ConversationID, acl.ErrDownstreamUnavailable,
			map[string]any{"place": req.Place, "err": err.Error()})
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["lang"] = req.Lang
	meta["units"] = req.Units

	reply, err := acl.NewInform(env.ConversationID, acl.WeatherAdvicePayload{
		Note: &note,
		Meta: meta,
	}, acl.WithOntology(WeatherOntology))
	if err != nil {
		return err
	}
	return w.rt.Send(ctx, from, reply)
}
