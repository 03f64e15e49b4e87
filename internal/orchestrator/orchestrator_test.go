package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/messaging"
	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/speech"
	"github.com/3ndigital/professor/internal/store"
	"github.com/3ndigital/professor/internal/topic"
)

const testIdentity = "5511999990000"

type fixture struct {
	orch   *Orchestrator
	store  store.Store
	ai     *genai.MockClient
	speech *speech.MockService
	msgr   *messaging.MockService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewInMemoryStore(),
		ai:     genai.NewMockClient(),
		speech: speech.NewMockService(),
		msgr:   messaging.NewMockService(),
	}
	f.orch = New(f.store, f.ai, f.speech, f.msgr)
	return f
}

func (f *fixture) leveledUser(t *testing.T, level models.ProficiencyLevel) models.User {
	t.Helper()
	user, err := f.store.GetOrCreateUser(testIdentity)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	if err := f.store.UpdateUser(user.ID, models.UserUpdate{Level: &level}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	user.Level = level
	return user
}

func (f *fixture) activeConversation(t *testing.T, userID string) models.Conversation {
	t.Helper()
	actives, err := f.store.GetActiveConversations(userID)
	if err != nil {
		t.Fatalf("GetActiveConversations failed: %v", err)
	}
	if len(actives) != 1 {
		t.Fatalf("expected exactly one active conversation, got %d", len(actives))
	}
	return actives[0]
}

func textEvent(text string) models.InboundEvent {
	return models.InboundEvent{Sender: testIdentity, Kind: models.EventText, Text: text}
}

func audioEvent() models.InboundEvent {
	return models.InboundEvent{
		Sender:           testIdentity,
		Kind:             models.EventAudio,
		AudioRef:         "media-1",
		Audio:            []byte("oggdata"),
		AudioContentType: "audio/ogg",
	}
}

func TestEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action, err := f.orch.HandleEvent(ctx, models.InboundEvent{Sender: "", Kind: models.EventText, Text: "hi"})
	if err != nil || action != models.ActionNoContent {
		t.Errorf("empty sender: got (%q, %v)", action, err)
	}

	action, err = f.orch.HandleEvent(ctx, models.InboundEvent{Sender: testIdentity, Kind: models.EventUnsupported})
	if err != nil || action != models.ActionUnsupportedType {
		t.Errorf("unsupported kind: got (%q, %v)", action, err)
	}

	action, err = f.orch.HandleEvent(ctx, textEvent("   "))
	if err != nil || action != models.ActionNoContent {
		t.Errorf("blank text: got (%q, %v)", action, err)
	}
}

func TestNewUserGetsWelcome(t *testing.T) {
	f := newFixture(t)

	action, err := f.orch.HandleEvent(context.Background(), textEvent("hello"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionWelcomeSent {
		t.Fatalf("expected welcome action, got %q", action)
	}

	user, err := f.store.GetOrCreateUser(testIdentity)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	if user.AssessmentProgress != 0 {
		t.Errorf("welcome must not advance the assessment counter, got %d", user.AssessmentProgress)
	}

	conv := f.activeConversation(t, user.ID)
	msgs, err := f.store.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionOutgoing {
		t.Fatalf("expected a single outgoing welcome, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Body, "Welcome to Professor AI") {
		t.Errorf("unexpected welcome body: %q", msgs[0].Body)
	}
	if len(f.msgr.SentTexts) != 1 {
		t.Errorf("welcome should be delivered once, got %d sends", len(f.msgr.SentTexts))
	}
}

func TestAssessmentFlowThroughCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orch.HandleEvent(ctx, textEvent("hi")); err != nil {
		t.Fatalf("welcome event failed: %v", err)
	}

	for turn := 1; turn <= 2; turn++ {
		action, err := f.orch.HandleEvent(ctx, textEvent("this is my answer"))
		if err != nil {
			t.Fatalf("turn %d failed: %v", turn, err)
		}
		if action != models.ActionAssessmentInProgress {
			t.Fatalf("turn %d: expected in-progress, got %q", turn, action)
		}
		user, _ := f.store.GetOrCreateUser(testIdentity)
		if user.AssessmentProgress != turn {
			t.Errorf("turn %d: progress = %d", turn, user.AssessmentProgress)
		}
	}

	user, _ := f.store.GetOrCreateUser(testIdentity)
	oldConv := f.activeConversation(t, user.ID)

	f.ai.Responses = []string{
		"INTERMEDIATE",
		`{"weekly_plans":[{"week":1,"focus_points":["f"],"daily_topics":["d"],"grammar":"g","vocabulary":"v","activities":["a"]}]}`,
	}
	action, err := f.orch.HandleEvent(ctx, textEvent("a reasonably long third answer about my goals"))
	if err != nil {
		t.Fatalf("completing turn failed: %v", err)
	}
	if action != models.ActionAssessmentCompleted {
		t.Fatalf("expected completion, got %q", action)
	}

	user, _ = f.store.GetOrCreateUser(testIdentity)
	if user.Level != models.LevelIntermediate {
		t.Errorf("level not set: %q", user.Level)
	}
	if user.StudyPlan == "" {
		t.Error("study plan not set")
	}

	// The old conversation is completed and the fresh one opens with the
	// completion and topic menu message.
	old, err := f.store.GetConversation(oldConv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if old.Status != models.ConversationCompleted {
		t.Errorf("old conversation status = %q", old.Status)
	}
	fresh := f.activeConversation(t, user.ID)
	if fresh.ID == oldConv.ID {
		t.Error("expected a fresh conversation after completion")
	}
	msgs, _ := f.store.ListMessages(fresh.ID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, completionMarker) {
		t.Errorf("fresh conversation should open with the completion message, got %+v", msgs)
	}
}

func TestReconcileActiveConversations(t *testing.T) {
	f := newFixture(t)
	user, err := f.store.GetOrCreateUser(testIdentity)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	first, err := f.store.CreateConversation(user.ID)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	second, err := f.store.CreateConversation(user.ID)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	resolved, err := f.orch.ReconcileActiveConversations(user.ID)
	if err != nil {
		t.Fatalf("ReconcileActiveConversations failed: %v", err)
	}
	if resolved.ID != second.ID {
		t.Errorf("expected most recent conversation %s, got %s", second.ID, resolved.ID)
	}

	actives, _ := f.store.GetActiveConversations(user.ID)
	if len(actives) != 1 {
		t.Fatalf("expected one active conversation after reconciliation, got %d", len(actives))
	}
	demoted, _ := f.store.GetConversation(first.ID)
	if demoted.Status != models.ConversationCompleted {
		t.Errorf("duplicate should be completed, got %q", demoted.Status)
	}

	// Idempotence: a second reconciliation changes nothing.
	again, err := f.orch.ReconcileActiveConversations(user.ID)
	if err != nil {
		t.Fatalf("second reconciliation failed: %v", err)
	}
	if again.ID != second.ID {
		t.Errorf("second reconciliation resolved %s", again.ID)
	}
	actives, _ = f.store.GetActiveConversations(user.ID)
	if len(actives) != 1 {
		t.Errorf("second reconciliation created or demoted conversations: %d active", len(actives))
	}
}

func TestTranscriptionFailureStoresOneApology(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelIntermediate)
	f.speech.TranscribeErr = errors.New("whisper unavailable")

	action, err := f.orch.HandleEvent(context.Background(), audioEvent())
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionAudioFailed {
		t.Fatalf("expected audio-failed action, got %q", action)
	}

	conv := f.activeConversation(t, user.ID)
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionOutgoing || msgs[0].Body != transcriptionApology {
		t.Errorf("expected exactly one outgoing apology, got %+v", msgs)
	}

	after, _ := f.store.GetOrCreateUser(testIdentity)
	if after.Level != models.LevelIntermediate || after.AssessmentProgress != 0 {
		t.Errorf("transcription failure must not mutate level/progress: %+v", after)
	}
}

func TestTranscriptionLanguageHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unleveled user: Portuguese hint. The transcription becomes the first
	// contact, which yields the welcome.
	f.speech.Transcriptions = []string{"ola professor"}
	if _, err := f.orch.HandleEvent(ctx, audioEvent()); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(f.speech.TranscribeCalls) != 1 || f.speech.TranscribeCalls[0] != "pt" {
		t.Errorf("unleveled user should transcribe with pt hint: %v", f.speech.TranscribeCalls)
	}

	user, _ := f.store.GetOrCreateUser(testIdentity)
	level := models.LevelAdvanced
	if err := f.store.UpdateUser(user.ID, models.UserUpdate{Level: &level}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	f.speech.Transcriptions = []string{"hello professor"}
	f.ai.Responses = []string{"Nice to hear from you!"}
	if _, err := f.orch.HandleEvent(ctx, audioEvent()); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if len(f.speech.TranscribeCalls) != 2 || f.speech.TranscribeCalls[1] != "en" {
		t.Errorf("leveled user should transcribe with en hint: %v", f.speech.TranscribeCalls)
	}
}

func TestTopicSelectionAfterCompletion(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelIntermediate)
	conv, err := f.store.CreateConversation(user.ID)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if _, err := f.store.AppendMessage(conv.ID, models.DirectionOutgoing, completionMessage(user.Level)); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	action, err := f.orch.HandleEvent(context.Background(), textEvent("2"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionTopicSelected {
		t.Fatalf("expected topic selection, got %q", action)
	}
	if len(f.msgr.SentTexts) != 1 || f.msgr.SentTexts[0].Body != topic.Opening(topic.Grammar) {
		t.Errorf("expected the grammar opening to be sent: %+v", f.msgr.SentTexts)
	}
}

func TestUnrecognizedSelectionFallsThroughToFreeForm(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelIntermediate)
	conv, _ := f.store.CreateConversation(user.ID)
	if _, err := f.store.AppendMessage(conv.ID, models.DirectionOutgoing, completionMessage(user.Level)); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	f.ai.Responses = []string{"Let's talk about that!"}
	action, err := f.orch.HandleEvent(context.Background(), textEvent("xyz"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionConversationProcessed {
		t.Fatalf("expected free-form fallthrough, got %q", action)
	}
	if len(f.ai.Requests) != 1 {
		t.Errorf("free-form should call the gateway once, got %d", len(f.ai.Requests))
	}
}

func TestFreeFormFallbackReplyOnGatewayFailure(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelAdvanced)
	f.ai.Err = errors.New("all providers failed")

	action, err := f.orch.HandleEvent(context.Background(), textEvent("tell me about phrasal verbs"))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionConversationProcessed {
		t.Fatalf("expected processed action, got %q", action)
	}
	if len(f.msgr.SentTexts) != 1 || f.msgr.SentTexts[0].Body != fallbackReply(models.LevelAdvanced) {
		t.Errorf("expected the advanced fallback reply, got %+v", f.msgr.SentTexts)
	}
	conv := f.activeConversation(t, user.ID)
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 2 {
		t.Errorf("inbound and fallback reply should both be stored, got %d messages", len(msgs))
	}
}

func TestAudioMentionsForceAudioReply(t *testing.T) {
	f := newFixture(t)
	f.leveledUser(t, models.LevelIntermediate)
	ctx := context.Background()

	f.ai.Responses = []string{"Sure!", "Of course!", "Here you go!"}
	for i := 0; i < 3; i++ {
		if _, err := f.orch.HandleEvent(ctx, textEvent("please send me an audio lesson")); err != nil {
			t.Fatalf("event %d failed: %v", i, err)
		}
	}

	if len(f.msgr.SentAudio) == 0 {
		t.Fatal("repeated audio mentions must force an audio reply")
	}
	if len(f.speech.SynthesizedText) == 0 {
		t.Error("audio reply should be synthesized")
	}
}

func TestInboundAudioGetsAudioReply(t *testing.T) {
	f := newFixture(t)
	f.leveledUser(t, models.LevelIntermediate)
	f.speech.Transcriptions = []string{"what did you think of my week"}
	f.ai.Responses = []string{"It sounds like a great week!"}

	action, err := f.orch.HandleEvent(context.Background(), audioEvent())
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionConversationProcessed {
		t.Fatalf("expected processed action, got %q", action)
	}
	if len(f.msgr.SentAudio) != 1 {
		t.Errorf("inbound audio should produce an audio reply: %+v", f.msgr.SentAudio)
	}
}

func TestSynthesisFailureDegradesToText(t *testing.T) {
	f := newFixture(t)
	f.leveledUser(t, models.LevelIntermediate)
	f.speech.Transcriptions = []string{"tell me a story"}
	f.speech.SynthesizeErr = errors.New("tts down")
	f.ai.Responses = []string{"Once upon a time..."}

	action, err := f.orch.HandleEvent(context.Background(), audioEvent())
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionConversationProcessed {
		t.Fatalf("expected processed action, got %q", action)
	}
	if len(f.msgr.SentAudio) != 0 {
		t.Error("failed synthesis must not send audio")
	}
	if len(f.msgr.SentTexts) != 1 {
		t.Errorf("reply should degrade to text: %+v", f.msgr.SentTexts)
	}
}

func TestPronunciationPracticeFeedback(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelIntermediate)
	conv, _ := f.store.CreateConversation(user.ID)
	if _, err := f.store.AppendMessage(conv.ID, models.DirectionOutgoing, topic.Opening(topic.Pronunciation)); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	f.speech.Transcriptions = []string{"think sink three tree"}
	action, err := f.orch.HandleEvent(context.Background(), audioEvent())
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if action != models.ActionPronunciationFeedback {
		t.Fatalf("expected pronunciation feedback, got %q", action)
	}
	if len(f.msgr.SentTexts) != 1 || !strings.Contains(f.msgr.SentTexts[0].Body, "I heard: 'think sink three tree'") {
		t.Errorf("feedback should quote the transcription: %+v", f.msgr.SentTexts)
	}
	if len(f.ai.Requests) != 0 {
		t.Error("canned feedback must not call the gateway")
	}
}

func TestPermissionFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	user := f.leveledUser(t, models.LevelIntermediate)
	f.ai.Responses = []string{"Hello there!"}
	f.msgr.SendErr = models.ErrRecipientNotPermitted

	action, err := f.orch.HandleEvent(context.Background(), textEvent("hello"))
	if err != nil {
		t.Fatalf("permission failure must not fail the event: %v", err)
	}
	if action != models.ActionConversationProcessed {
		t.Fatalf("expected processed action, got %q", action)
	}
	// Conversation state is durable regardless of delivery.
	conv := f.activeConversation(t, user.ID)
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 2 {
		t.Errorf("expected stored inbound and reply, got %d messages", len(msgs))
	}
}
