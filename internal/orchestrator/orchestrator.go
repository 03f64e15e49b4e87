// Package orchestrator implements the conversation state machine for
// Professor.
//
// HandleEvent takes one normalized inbound event and, based on the user's
// leveling state and conversation history, advances the assessment, routes
// a topic selection, or generates a free-form reply, then picks the output
// channel (text or synthesized audio) and delivers it.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/3ndigital/professor/internal/assessment"
	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/messaging"
	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/speech"
	"github.com/3ndigital/professor/internal/store"
	"github.com/3ndigital/professor/internal/topic"
)

// contextWindow bounds how much history the free-form responder sees.
const contextWindow = 5

// pronunciationKeywords in the latest inbound message select the audio
// output channel.
var pronunciationKeywords = []string{"pronounce", "pronunciation", "speak", "say", "sound"}

// practiceMarkers in recent outgoing messages indicate the user is inside
// a pronunciation-practice exchange, so a voice note gets canned feedback
// instead of a generated reply.
var practiceMarkers = []string{"pronunciation", "think vs sink", "three vs tree", "ship vs sheep"}

// Orchestrator dispatches inbound events across the assessment engine, the
// topic router and the free-form responder.
type Orchestrator struct {
	store     store.Store
	ai        genai.ClientInterface
	speech    speech.Service
	messenger messaging.Service
	engine    *assessment.Engine
}

// New creates an orchestrator over the given collaborators.
func New(s store.Store, ai genai.ClientInterface, sp speech.Service, messenger messaging.Service) *Orchestrator {
	return &Orchestrator{
		store:     s,
		ai:        ai,
		speech:    sp,
		messenger: messenger,
		engine:    assessment.NewEngine(s, ai),
	}
}

// HandleEvent processes one inbound event to completion. Store failures
// before any branch abort the event; failures while composing or delivering
// the response degrade to an apology or a fallback reply instead.
func (o *Orchestrator) HandleEvent(ctx context.Context, event models.InboundEvent) (models.OutboundAction, error) {
	if strings.TrimSpace(event.Sender) == "" {
		slog.Debug("Orchestrator.HandleEvent skipping event without sender")
		return models.ActionNoContent, nil
	}
	if event.Kind != models.EventText && event.Kind != models.EventAudio {
		slog.Debug("Orchestrator.HandleEvent unsupported event kind", "kind", event.Kind, "sender", event.Sender)
		return models.ActionUnsupportedType, nil
	}

	user, err := o.store.GetOrCreateUser(event.Sender)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user: %w", err)
	}

	conv, err := o.ReconcileActiveConversations(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve active conversation: %w", err)
	}

	text, failedAction, err := o.normalizeContent(ctx, &user, conv, event)
	if err != nil {
		return "", err
	}
	if failedAction != "" {
		return failedAction, nil
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("Orchestrator.HandleEvent no content to process", "sender", event.Sender)
		return models.ActionNoContent, nil
	}

	// Snapshot history before the inbound message is appended: the welcome
	// branch needs the prior message count, the topic and pronunciation
	// branches the preceding outgoing messages.
	priorCount, err := o.store.CountMessages(conv.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count messages: %w", err)
	}
	priorRecent, err := o.store.RecentMessages(conv.ID, 3)
	if err != nil {
		return "", fmt.Errorf("failed to load recent messages: %w", err)
	}

	// Welcome branch stores no incoming message: the user's first contact
	// only triggers the fixed welcome, their next reply is the first
	// scored answer.
	if !user.Level.IsAssigned() && priorCount == 0 {
		if _, err := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, welcomeMessage); err != nil {
			return "", fmt.Errorf("failed to store welcome message: %w", err)
		}
		o.deliverText(ctx, user.Identity, welcomeMessage)
		return models.ActionWelcomeSent, nil
	}

	if _, err := o.store.AppendMessage(conv.ID, models.DirectionIncoming, text); err != nil {
		return "", fmt.Errorf("failed to store inbound message: %w", err)
	}

	if !user.Level.IsAssigned() {
		return o.handleAssessmentTurn(ctx, &user, conv, text)
	}

	if event.Kind == models.EventAudio && inPronunciationPractice(priorRecent) {
		feedback := pronunciationFeedback(text)
		if _, err := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, feedback); err != nil {
			return "", fmt.Errorf("failed to store pronunciation feedback: %w", err)
		}
		o.deliverText(ctx, user.Identity, feedback)
		return models.ActionPronunciationFeedback, nil
	}

	if opening, ok := o.routeTopicSelection(priorRecent, text); ok {
		if _, err := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, opening); err != nil {
			return "", fmt.Errorf("failed to store topic opening: %w", err)
		}
		o.deliverText(ctx, user.Identity, opening)
		return models.ActionTopicSelected, nil
	}

	return o.handleFreeForm(ctx, user, conv, event, text)
}

// ReconcileActiveConversations resolves the single active conversation for
// a user, creating one if none exists and demoting all but the most
// recently started when concurrent processing has produced duplicates.
// Idempotent: a second call without new events never creates or demotes
// anything.
func (o *Orchestrator) ReconcileActiveConversations(userID string) (models.Conversation, error) {
	actives, err := o.store.GetActiveConversations(userID)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to list active conversations: %w", err)
	}

	if len(actives) == 0 {
		conv, err := o.store.CreateConversation(userID)
		if err != nil {
			return models.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	for _, dup := range actives[1:] {
		if err := o.store.SetConversationStatus(dup.ID, models.ConversationCompleted); err != nil {
			return models.Conversation{}, fmt.Errorf("failed to demote duplicate conversation: %w", err)
		}
		slog.Warn("Orchestrator demoted duplicate active conversation", "conversation_id", dup.ID, "user_id", userID)
	}
	return actives[0], nil
}

// normalizeContent turns the event payload into text. For audio events it
// transcribes the voice note; on failure it stores and sends the apology
// and reports the terminal audio-failed action without mutating the user.
func (o *Orchestrator) normalizeContent(ctx context.Context, user *models.User, conv models.Conversation, event models.InboundEvent) (string, models.OutboundAction, error) {
	if event.Kind == models.EventText {
		return event.Text, "", nil
	}

	text, err := o.transcribe(ctx, user, event)
	if err != nil {
		slog.Error("Orchestrator audio transcription failed", "error", err, "sender", event.Sender)
		if _, storeErr := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, transcriptionApology); storeErr != nil {
			return "", "", fmt.Errorf("failed to store transcription apology: %w", storeErr)
		}
		o.deliverText(ctx, user.Identity, transcriptionApology)
		return "", models.ActionAudioFailed, nil
	}
	return text, "", nil
}

// transcribe runs the speech gateway over the event's audio bytes. The
// language hint is English once the user is leveled, Portuguese before.
func (o *Orchestrator) transcribe(ctx context.Context, user *models.User, event models.InboundEvent) (string, error) {
	if len(event.Audio) == 0 {
		return "", fmt.Errorf("audio event carries no payload")
	}
	language := "pt"
	if user.Level.IsAssigned() {
		language = "en"
	}
	filename := "voice_note.ogg"
	if event.AudioRef != "" {
		filename = "voice_note_" + event.AudioRef + ".ogg"
	}
	return o.speech.Transcribe(ctx, bytes.NewReader(event.Audio), filename, event.AudioContentType, language)
}

// handleAssessmentTurn delegates one answer to the assessment engine and,
// on completion, atomically rolls the user over into a fresh conversation
// opened with the completion and topic menu message.
func (o *Orchestrator) handleAssessmentTurn(ctx context.Context, user *models.User, conv models.Conversation, answer string) (models.OutboundAction, error) {
	res, err := o.engine.ScoreAndAdvance(ctx, user, answer)
	if err != nil {
		return "", fmt.Errorf("assessment turn failed: %w", err)
	}

	if !res.Complete {
		if _, err := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, res.Reply); err != nil {
			return "", fmt.Errorf("failed to store assessment question: %w", err)
		}
		o.deliverText(ctx, user.Identity, res.Reply)
		return models.ActionAssessmentInProgress, nil
	}

	actives, err := o.store.GetActiveConversations(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list active conversations: %w", err)
	}
	for _, active := range actives {
		if err := o.store.SetConversationStatus(active.ID, models.ConversationCompleted); err != nil {
			return "", fmt.Errorf("failed to complete conversation: %w", err)
		}
	}
	fresh, err := o.store.CreateConversation(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to open post-assessment conversation: %w", err)
	}

	msg := completionMessage(res.Level)
	if _, err := o.store.AppendMessage(fresh.ID, models.DirectionOutgoing, msg); err != nil {
		return "", fmt.Errorf("failed to store completion message: %w", err)
	}
	o.deliverText(ctx, user.Identity, msg)
	slog.Info("Orchestrator assessment completed", "user_id", user.ID, "level", res.Level)
	return models.ActionAssessmentCompleted, nil
}

// routeTopicSelection checks whether the preceding outgoing message was
// the completion and topic menu, and if so tries the topic router.
func (o *Orchestrator) routeTopicSelection(priorRecent []models.Message, text string) (string, bool) {
	var lastOutgoing *models.Message
	for i := range priorRecent {
		if priorRecent[i].Direction == models.DirectionOutgoing {
			lastOutgoing = &priorRecent[i]
			break
		}
	}
	if lastOutgoing == nil || !strings.Contains(lastOutgoing.Body, completionMarker) {
		return "", false
	}
	return topic.Route(text)
}

// handleFreeForm generates a reply from the bounded context window, picks
// the output channel and delivers. Gateway failures degrade to the
// level-keyed fallback reply, synthesis failures to text delivery.
func (o *Orchestrator) handleFreeForm(ctx context.Context, user models.User, conv models.Conversation, event models.InboundEvent, text string) (models.OutboundAction, error) {
	// Channel selection looks at the history up to and including the
	// inbound message, before the reply is appended.
	recent, err := o.store.RecentMessages(conv.ID, 3)
	if err != nil {
		slog.Error("Orchestrator failed to load messages for channel selection", "error", err)
		recent = nil
	}
	wantAudio := o.shouldRespondWithAudio(event.Kind, recent, text)

	reply := o.generateReply(ctx, user, conv, text)

	if _, err := o.store.AppendMessage(conv.ID, models.DirectionOutgoing, reply); err != nil {
		return "", fmt.Errorf("failed to store reply: %w", err)
	}

	if wantAudio {
		if o.deliverAsAudio(ctx, user.Identity, reply) {
			return models.ActionConversationProcessed, nil
		}
		// Degrade to text below.
	}
	o.deliverText(ctx, user.Identity, reply)
	return models.ActionConversationProcessed, nil
}

// generateReply calls the generative gateway with the last messages as
// context, substituting the level-keyed fallback when all providers fail.
func (o *Orchestrator) generateReply(ctx context.Context, user models.User, conv models.Conversation, text string) string {
	recent, err := o.store.RecentMessages(conv.ID, contextWindow)
	if err != nil {
		slog.Error("Orchestrator failed to load context window", "error", err)
		recent = nil
	}

	// Newest-first to chronological, excluding the inbound message that is
	// passed separately as the user turn.
	history := make([]genai.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if i == 0 && m.Direction == models.DirectionIncoming && m.Body == text {
			continue
		}
		history = append(history, genai.Turn{
			FromUser: m.Direction == models.DirectionIncoming,
			Content:  m.Body,
		})
	}

	reply, err := o.ai.Complete(ctx, genai.Request{
		SystemPrompt: systemPrompt(user.Level),
		History:      history,
		UserMessage:  text,
	})
	if err != nil {
		slog.Warn("Orchestrator generation failed, using fallback reply", "error", err, "user_id", user.ID)
		return fallbackReply(user.Level)
	}
	return strings.TrimSpace(reply)
}

// shouldRespondWithAudio selects the output channel: audio when the
// inbound event was audio, when at least two of the last three stored
// messages reference audio, or when the latest inbound message contains a
// pronunciation keyword.
func (o *Orchestrator) shouldRespondWithAudio(kind models.EventKind, recent []models.Message, inboundText string) bool {
	if kind == models.EventAudio {
		return true
	}

	audioMentions := 0
	limit := len(recent)
	if limit > 3 {
		limit = 3
	}
	for _, m := range recent[:limit] {
		if strings.Contains(strings.ToLower(m.Body), "audio") {
			audioMentions++
		}
	}
	if audioMentions >= 2 {
		return true
	}

	lowered := strings.ToLower(inboundText)
	for _, keyword := range pronunciationKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// deliverAsAudio synthesizes the reply and sends it as audio. Returns
// false when synthesis or sending fails so the caller can degrade to text.
func (o *Orchestrator) deliverAsAudio(ctx context.Context, identity, reply string) bool {
	result, err := o.speech.Synthesize(ctx, reply)
	if err != nil {
		slog.Warn("Orchestrator audio synthesis failed, degrading to text", "error", err)
		return false
	}

	payload := messaging.AudioPayload{URL: result.URL, ContentType: "audio/mpeg"}
	if result.Path != "" {
		if data, err := os.ReadFile(result.Path); err == nil {
			payload.Data = data
		} else {
			slog.Warn("Orchestrator could not read synthesized audio file", "error", err, "path", result.Path)
		}
	}

	if err := o.messenger.SendAudio(ctx, identity, payload); err != nil {
		if errors.Is(err, models.ErrRecipientNotPermitted) {
			slog.Warn("Orchestrator recipient not permitted for audio", "to", identity)
			return true
		}
		slog.Error("Orchestrator audio delivery failed, degrading to text", "error", err, "to", identity)
		return false
	}
	return true
}

// deliverText sends a text message, swallowing recipient-permission
// failures and logging anything else. Conversation state is already
// durable by the time delivery is attempted.
func (o *Orchestrator) deliverText(ctx context.Context, identity, body string) {
	if err := o.messenger.SendText(ctx, identity, body); err != nil {
		if errors.Is(err, models.ErrRecipientNotPermitted) {
			slog.Warn("Orchestrator recipient not permitted", "to", identity)
			return
		}
		slog.Error("Orchestrator text delivery failed", "error", err, "to", identity)
	}
}

// inPronunciationPractice reports whether a recent outgoing message put
// the conversation into pronunciation practice.
func inPronunciationPractice(recent []models.Message) bool {
	for _, m := range recent {
		body := strings.ToLower(m.Body)
		for _, marker := range practiceMarkers {
			if strings.Contains(body, marker) {
				return true
			}
		}
	}
	return false
}
