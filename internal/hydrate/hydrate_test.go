package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type attributes struct {
	ParamDecls []string `json:"param_decls"`
	Type       string   `json:"type"`
	Eager      bool     `json:"is_eager"`
	Help       string   `json:"help"`
}

func TestDecoderDecodesAttributes(t *testing.T) {
	decoder := NewDecoder[attributes]()
	got, err := decoder.Decode(Context{Option: "nproc"}, map[string]any{
		"param_decls": []any{"-n", "--nproc"},
		"type":        "int",
		"help":        "worker count",
	})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Type != "int" || len(got.ParamDecls) != 2 || got.ParamDecls[1] != "--nproc" {
		t.Fatalf("decoded attributes mismatch: %#v", got)
	}
}

func TestDecoderDisallowUnknownFields(t *testing.T) {
	decoder := NewDecoder[attributes](WithDisallowUnknownFields[attributes]())
	_, err := decoder.Decode(Context{Option: "nproc", Source: "attributes.yaml"}, map[string]any{
		"typo": true,
	})
	if err == nil {
		t.Fatal("expected unknown field error")
	}
	if !strings.Contains(err.Error(), `"attributes.yaml:nproc"`) {
		t.Fatalf("expected error to name the option, got %v", err)
	}
}

func TestDecoderHooks(t *testing.T) {
	var seen []string
	pre := func(ctx Context, payload map[string]any) (map[string]any, error) {
		seen = append(seen, "pre:"+ctx.Option)
		if aliases, ok := payload["aliases"]; ok {
			payload["param_decls"] = aliases
			delete(payload, "aliases")
		}
		return payload, nil
	}
	post := func(ctx Context, attrs *attributes) error {
		seen = append(seen, "post:"+ctx.Option)
		if attrs.Help == "" {
			attrs.Help = "(no help)"
		}
		return nil
	}

	decoder := NewDecoder[attributes](
		WithPreHook[attributes](pre),
		WithPostHook[attributes](post),
		WithDisallowUnknownFields[attributes](),
	)
	got, err := decoder.Decode(Context{Option: "tickers"}, map[string]any{"aliases": []any{"-T"}})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(got.ParamDecls) != 1 || got.ParamDecls[0] != "-T" || got.Help != "(no help)" {
		t.Fatalf("hooks not applied: %#v", got)
	}
	if strings.Join(seen, ",") != "pre:tickers,post:tickers" {
		t.Fatalf("unexpected hook order: %v", seen)
	}
}

func TestDecoderHookErrors(t *testing.T) {
	sentinel := errors.New("boom")
	decoder := NewDecoder[attributes](WithPostHook[attributes](func(Context, *attributes) error {
		return sentinel
	}))
	_, err := decoder.Decode(Context{Option: "x"}, map[string]any{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}

	_, err = decoder.Decode(Context{Option: "x"}, nil)
	if err == nil {
		t.Fatal("expected nil payload error")
	}
}

func TestDecoderUseNumberAndCustom(t *testing.T) {
	type numbers struct {
		Value any `json:"value"`
	}
	decoder := NewDecoder[numbers](WithUseNumber[numbers]())
	got, err := decoder.Decode(Context{Option: "n"}, map[string]any{"value": 504})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if _, ok := got.Value.(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", got.Value)
	}

	custom := NewDecoder[numbers](WithCustomDecoder[numbers](func(_ Context, payload map[string]any) (numbers, error) {
		return numbers{Value: fmt.Sprint(payload["value"])}, nil
	}))
	got, err = custom.Decode(Context{Option: "n"}, map[string]any{"value": 1})
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Value != "1" {
		t.Fatalf("custom decoder not used: %#v", got)
	}
}
