// Package dispatch decodes inbound command frames and routes them to
// handlers, following the original device's command/destination chain
// (CommandHandler::processCommand) reshaped into the table-driven form
// spec.md §9 calls for: a map from (Command, Destination) or Command alone
// to a handler function, with unknown commands routed to a default
// success responder.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/originsim/origin-server/internal/astro"
	"github.com/originsim/origin-server/internal/conn"
	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/telemetry"
)

// Activities starts the tick-driven simulated activities a handler may
// trigger as a side effect.
type Activities interface {
	StartSlew()
	StartImaging()
	StartInitialize(fake bool)
}

// Envelope is the common set of fields every inbound command carries.
type Envelope struct {
	Command     string
	Destination string
	Source      string
	SequenceID  int64
	Type        string
}

// Fields is the set of extra JSON fields a handler adds to its response
// envelope.
type Fields map[string]any

// HandlerFunc processes one command and returns the extra response fields
// plus an error code/message pair (0/"" on success).
type HandlerFunc func(ctx *Context) (Fields, int, string)

// Context is the per-invocation state a handler needs.
type Context struct {
	Store      *state.Store
	Activities Activities
	Env        Envelope
	Raw        []byte
}

// Dispatcher owns the command table and turns inbound text frames into
// outbound JSON responses.
type Dispatcher struct {
	store      *state.Store
	activities Activities
}

// New builds a Dispatcher wired to the given state store and activity
// scheduler.
func New(store *state.Store, activities Activities) *Dispatcher {
	return &Dispatcher{store: store, activities: activities}
}

// Handle parses raw as a command envelope, dispatches it, and writes the
// JSON response back to c. It is meant to be wired as a conn.Handlers.OnText
// callback, so it runs on that connection's own read-loop goroutine and
// never races with dispatch on the same connection.
func (d *Dispatcher) Handle(c *conn.Connection, raw []byte) {
	env := parseEnvelope(raw)

	_, span := telemetry.Tracer().Start(context.Background(), "dispatch."+env.Command)
	span.SetAttributes(
		attribute.String("origin.command", env.Command),
		attribute.String("origin.destination", env.Destination),
		attribute.String("origin.conn_id", c.ID),
	)
	defer span.End()

	handler := lookup(env.Command, env.Destination)

	ctx := &Context{Store: d.store, Activities: d.activities, Env: env, Raw: raw}
	fields, errCode, errMsg := handler(ctx)

	telemetry.DispatchTotal.WithLabelValues(env.Command).Inc()
	if errCode != 0 {
		telemetry.DispatchErrors.WithLabelValues(env.Command).Inc()
		span.SetStatus(codes.Error, errMsg)
	}

	resp := map[string]any{
		"Command":      env.Command,
		"Source":       env.Destination,
		"Destination":  env.Source,
		"SequenceID":   env.SequenceID,
		"Type":         "Response",
		"ErrorCode":    errCode,
		"ErrorMessage": errMsg,
		"ExpiredAt":    d.store.ExpiredAtMillis(),
	}
	for k, v := range fields {
		resp[k] = v
	}

	body, err := json.Marshal(resp)
	if err != nil {
		telemetry.Debugf("dispatch: failed to marshal response for %s: %v", env.Command, err)
		return
	}
	if err := c.SendText(body); err != nil {
		telemetry.Debugf("dispatch: send failed for %s: %v", env.Command, err)
	}
}

// parseEnvelope pulls the common fields out of a raw command frame using a
// cheap gjson peek rather than a full unmarshal into a struct, since each
// command's payload shape differs and most dispatch decisions only need
// these five fields.
func parseEnvelope(raw []byte) Envelope {
	return Envelope{
		Command:     gjson.GetBytes(raw, "Command").String(),
		Destination: gjson.GetBytes(raw, "Destination").String(),
		Source:      gjson.GetBytes(raw, "Source").String(),
		SequenceID:  gjson.GetBytes(raw, "SequenceID").Int(),
		Type:        gjson.GetBytes(raw, "Type").String(),
	}
}

func lookup(command, destination string) HandlerFunc {
	if h, ok := destinationKeyed[command+"|"+destination]; ok {
		return h
	}
	if h, ok := commandKeyed[command]; ok {
		return h
	}
	return defaultHandler
}

// defaultHandler is the "legacy behaviour preserved" fallback: unknown
// commands are not errors, they just get an empty success response.
func defaultHandler(ctx *Context) (Fields, int, string) {
	return nil, 0, ""
}

// jd returns the current Julian date for the store's clock, used by the
// Mount jog handler's coordinate transform.
func jd(s *state.Store) float64 {
	return astro.JulianDate(float64(s.Now().Unix()))
}
