package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aristath/personaliz/internal/ollama"
)

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher maps operation names to gateway calls.
type Dispatcher struct {
	handlers map[string]handlerFunc
}

type postArgs struct {
	Content string `json:"content"`
	Sandbox bool   `json:"sandbox"`
}

type scriptedArgs struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Sandbox   bool   `json:"sandbox"`
}

type commandArgs struct {
	Command string `json:"command"`
}

type messageArgs struct {
	Message string           `json:"message"`
	History []ollama.Message `json:"history"`
}

// NewDispatcher registers every gateway operation on g.
func NewDispatcher(g *Gateway) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]handlerFunc)}

	d.handlers[OpCheckServiceStatus] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return g.CheckServiceStatus(ctx), nil
	}
	d.handlers[OpExecuteAgent] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a AgentInvocation
		if err := decodeArgs(OpExecuteAgent, raw, &a); err != nil {
			return nil, err
		}
		return g.ExecuteAgent(ctx, a)
	}
	d.handlers[OpPostToLinkedIn] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a postArgs
		if err := decodeArgs(OpPostToLinkedIn, raw, &a); err != nil {
			return nil, err
		}
		return g.PostToLinkedIn(ctx, a.Content, a.Sandbox)
	}
	d.handlers[OpRunScriptedAgent] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a scriptedArgs
		if err := decodeArgs(OpRunScriptedAgent, raw, &a); err != nil {
			return nil, err
		}
		out, err := g.RunScriptedAgent(ctx, a.AgentID, a.AgentName, a.Sandbox)
		if err != nil {
			return nil, err
		}
		return out.Value, nil
	}
	d.handlers[OpRunCommand] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a commandArgs
		if err := decodeArgs(OpRunCommand, raw, &a); err != nil {
			return nil, err
		}
		return g.RunCommand(ctx, a.Command)
	}
	d.handlers[OpCheckToolInstalled] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return g.CheckToolInstalled(ctx), nil
	}
	d.handlers[OpCheckInterpreterAvailable] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return g.CheckInterpreterAvailable(ctx), nil
	}
	d.handlers[OpSendMessage] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a messageArgs
		if err := decodeArgs(OpSendMessage, raw, &a); err != nil {
			return nil, err
		}
		return g.SendMessage(ctx, a.Message, a.History)
	}
	d.handlers[OpInstallInstructions] = func(context.Context, json.RawMessage) (any, error) {
		return g.InstallInstructions(), nil
	}
	d.handlers[OpListModels] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return g.ListModels(ctx)
	}
	d.handlers[OpStatus] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		return g.Status(ctx), nil
	}
	d.handlers[OpWaitForService] = func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := g.WaitForService(ctx); err != nil {
			return nil, err
		}
		return true, nil
	}

	return d
}

// Names lists the registered operation names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the operation called name with JSON-encoded args.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: name, Msg: fmt.Sprintf("unknown operation %q", name)}
	}
	return h(ctx, args)
}

// decodeArgs rejects unknown fields so typos in argument names surface.
func decodeArgs(op string, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &Error{Kind: KindInvalidArgs, Op: op, Msg: fmt.Sprintf("invalid arguments: %v", err), Err: err}
	}
	return nil
}

// Reply is the CLI envelope around an Invoke result.
type Reply struct {
	OK     bool        `json:"ok"`
	Result any         `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
}

// ReplyError is the error half of Reply.
type ReplyError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// NewReply wraps an Invoke outcome.
func NewReply(result any, err error) Reply {
	if err == nil {
		return Reply{OK: true, Result: result}
	}
	re := &ReplyError{Kind: KindOf(err), Message: Message(err)}
	var ge *Error
	if errors.As(err, &ge) {
		re.Status = ge.Status
	}
	return Reply{OK: false, Error: re}
}
