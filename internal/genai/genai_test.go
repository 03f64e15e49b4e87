package genai

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestClientReturnsFirstSuccess(t *testing.T) {
	first := &fakeProvider{name: "first", text: "primary answer"}
	second := &fakeProvider{name: "second", text: "fallback answer"}
	c := NewClientWithProviders(time.Second, first, second)

	got, err := c.Complete(context.Background(), Request{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "primary answer" {
		t.Errorf("Complete = %q, want primary answer", got)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times, want 0", second.calls)
	}
}

func TestClientFallsBackOnFailure(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("rate limited")}
	second := &fakeProvider{name: "second", text: "fallback answer"}
	c := NewClientWithProviders(time.Second, first, second)

	got, err := c.Complete(context.Background(), Request{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "fallback answer" {
		t.Errorf("Complete = %q, want fallback answer", got)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestClientErrorsWhenAllFail(t *testing.T) {
	boom := errors.New("boom")
	c := NewClientWithProviders(time.Second,
		&fakeProvider{name: "first", err: errors.New("down")},
		&fakeProvider{name: "second", err: boom},
	)

	_, err := c.Complete(context.Background(), Request{UserMessage: "hi"})
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error should wrap the last provider failure, got %v", err)
	}
}

func TestNewClientRequiresAKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when no provider key is configured")
	}
}

func TestNewClientRanksDeepSeekFirst(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	c, err := NewClient(WithDeepSeekKey("ds-key"), WithOpenAIKey("oa-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if len(c.providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(c.providers))
	}
	if c.providers[0].Name() != "deepseek" || c.providers[1].Name() != "openai" {
		t.Errorf("provider order = %s,%s; want deepseek,openai", c.providers[0].Name(), c.providers[1].Name())
	}
}

func TestMockClientQueue(t *testing.T) {
	m := NewMockClient()
	m.Responses = []string{"one", "two"}

	got, err := m.Complete(context.Background(), Request{UserMessage: "a"})
	if err != nil || got != "one" {
		t.Fatalf("first Complete = %q, %v", got, err)
	}
	got, err = m.Complete(context.Background(), Request{UserMessage: "b"})
	if err != nil || got != "two" {
		t.Fatalf("second Complete = %q, %v", got, err)
	}
	if _, err := m.Complete(context.Background(), Request{}); err == nil {
		t.Error("expected error when mock queue is empty")
	}
	if len(m.Requests) != 3 {
		t.Errorf("recorded %d requests, want 3", len(m.Requests))
	}
}
