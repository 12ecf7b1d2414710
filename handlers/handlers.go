// Package handlers implements the message semantics of the gateway: rate
// quoting and client tool calls against the ShipVox backend. Handlers are
// pure with respect to delivery; they return (response, update) pairs and the
// router decides who receives them.
package handlers

import (
	"fmt"

	"github.com/shipanion/gateway/dispatch"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/shipvox"
)

// Handlers holds the dependencies shared by all message handlers.
type Handlers struct {
	client *shipvox.Client
}

// Register wires every message handler into the dispatcher.
func Register(d *dispatch.Dispatcher, client *shipvox.Client) {
	h := &Handlers{client: client}
	d.Register(protocol.TypeGetRates, h.handleGetRates)
	d.Register(protocol.TypeClientToolCall, h.handleClientToolCall)
}

// asString pulls a string out of decoded JSON parameters; JSON numbers and
// other types come back empty.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asFloat pulls a number out of decoded JSON parameters. encoding/json
// decodes every number in a map[string]any as float64.
func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// dimensionsFrom converts an optional {length, width, height} object.
func dimensionsFrom(v any) *shipvox.Dimensions {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &shipvox.Dimensions{
		Length: asFloat(m["length"]),
		Width:  asFloat(m["width"]),
		Height: asFloat(m["height"]),
	}
}

// requireParams checks that every named parameter is present, in order, and
// returns the stable error text agents match on.
func requireParams(params map[string]any, names ...string) error {
	for _, name := range names {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("Missing required parameter: %s", name)
		}
	}
	return nil
}
