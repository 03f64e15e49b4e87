package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/store"
)

func newTestEngine(t *testing.T, ai genai.ClientInterface) (*Engine, store.Store, *models.User) {
	t.Helper()
	s := store.NewInMemoryStore()
	user, err := s.GetOrCreateUser("5511999990000")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	return NewEngine(s, ai), s, &user
}

func TestHeuristicLevel(t *testing.T) {
	tests := []struct {
		words int
		want  models.ProficiencyLevel
	}{
		{3, models.LevelBeginner},
		{10, models.LevelElementary},
		{20, models.LevelIntermediate},
		{40, models.LevelUpperIntermediate},
	}
	for _, tt := range tests {
		answer := strings.TrimSpace(strings.Repeat("word ", tt.words))
		if got := HeuristicLevel(answer); got != tt.want {
			t.Errorf("%d words: got %q, want %q", tt.words, got, tt.want)
		}
	}
}

func TestEarlyTurnsReturnQuestionsWithoutScoring(t *testing.T) {
	mock := genai.NewMockClient()
	engine, _, user := newTestEngine(t, mock)
	ctx := context.Background()

	for turn := 1; turn < MinScoringTurns; turn++ {
		res, err := engine.ScoreAndAdvance(ctx, user, "my answer")
		if err != nil {
			t.Fatalf("turn %d failed: %v", turn, err)
		}
		if res.Complete {
			t.Fatalf("turn %d completed before minimum threshold", turn)
		}
		if !strings.Contains(res.Reply, "(Question") {
			t.Errorf("turn %d reply missing sequence suffix: %q", turn, res.Reply)
		}
		if user.AssessmentProgress != turn {
			t.Errorf("turn %d: progress = %d", turn, user.AssessmentProgress)
		}
	}

	if len(mock.Requests) != 0 {
		t.Errorf("no scoring calls expected before threshold, got %d", len(mock.Requests))
	}
}

func TestScoringCompletesWithLevelAndPlan(t *testing.T) {
	mock := genai.NewMockClient()
	mock.Responses = []string{
		"ADVANCED", // scoring label
		`{"weekly_plans":[{"week":1,"focus_points":["x"],"daily_topics":["y"],"grammar":"g","vocabulary":"v","activities":["a"]}]}`,
	}
	engine, s, user := newTestEngine(t, mock)
	user.AssessmentProgress = MinScoringTurns - 1
	ctx := context.Background()

	res, err := engine.ScoreAndAdvance(ctx, user, "a long and well constructed answer")
	if err != nil {
		t.Fatalf("ScoreAndAdvance failed: %v", err)
	}
	if !res.Complete || res.Level != models.LevelAdvanced {
		t.Fatalf("expected advanced completion, got %+v", res)
	}
	if !strings.Contains(res.Reply, "ADVANCED") {
		t.Errorf("summary should name the level: %q", res.Reply)
	}

	stored, err := s.GetUser(user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if stored.Level != models.LevelAdvanced {
		t.Errorf("level not persisted: %q", stored.Level)
	}
	var plan models.StudyPlan
	if err := json.Unmarshal([]byte(stored.StudyPlan), &plan); err != nil || len(plan.WeeklyPlans) != 1 {
		t.Errorf("persisted plan invalid: %v %q", err, stored.StudyPlan)
	}
}

func TestUnrecognizedLabelDefaultsToIntermediate(t *testing.T) {
	mock := genai.NewMockClient()
	mock.Responses = []string{"I think the student is doing great!", "not json"}
	engine, _, user := newTestEngine(t, mock)
	user.AssessmentProgress = MinScoringTurns - 1

	res, err := engine.ScoreAndAdvance(context.Background(), user, "some answer of a few words")
	if err != nil {
		t.Fatalf("ScoreAndAdvance failed: %v", err)
	}
	if !res.Complete || res.Level != models.LevelIntermediate {
		t.Errorf("expected intermediate default, got %+v", res)
	}
}

func TestScoringFailureContinuesUntilBankExhaustion(t *testing.T) {
	mock := genai.NewMockClient()
	mock.Err = errors.New("all providers failed")
	engine, _, user := newTestEngine(t, mock)
	ctx := context.Background()

	// Progress increases by exactly one per turn, and within the bank a
	// failed scoring call yields the next question rather than a level.
	var res Result
	var err error
	for turn := 1; turn <= QuestionSequenceLength; turn++ {
		res, err = engine.ScoreAndAdvance(ctx, user, "short answer here")
		if err != nil {
			t.Fatalf("turn %d failed: %v", turn, err)
		}
		if user.AssessmentProgress != turn {
			t.Fatalf("turn %d: progress = %d", turn, user.AssessmentProgress)
		}
		if turn < QuestionSequenceLength && res.Complete {
			t.Fatalf("completed at turn %d before bank exhaustion", turn)
		}
	}

	if !res.Complete {
		t.Fatal("bank exhaustion must force completion")
	}
	// "short answer here" is 3 words: heuristic beginner.
	if res.Level != models.LevelBeginner {
		t.Errorf("expected heuristic beginner, got %q", res.Level)
	}
	if user.StudyPlan == "" {
		t.Error("default study plan should be set on heuristic completion")
	}
}

func TestFinalQuestionSuffix(t *testing.T) {
	mock := genai.NewMockClient()
	mock.Err = errors.New("down")
	engine, _, user := newTestEngine(t, mock)
	user.AssessmentProgress = QuestionSequenceLength - 2

	res, err := engine.ScoreAndAdvance(context.Background(), user, "answer")
	if err != nil {
		t.Fatalf("ScoreAndAdvance failed: %v", err)
	}
	if !strings.Contains(res.Reply, "Final question!") {
		t.Errorf("expected final-question suffix, got %q", res.Reply)
	}
}

func TestFirstQuestionIsIntroductory(t *testing.T) {
	q := FirstQuestion()
	if !strings.Contains(q, introductoryBank[0]) {
		t.Errorf("first question should come from the introductory bank: %q", q)
	}
	if !strings.Contains(q, "(Question 1 of") {
		t.Errorf("first question missing sequence suffix: %q", q)
	}
}

func TestBankEscalation(t *testing.T) {
	q, _ := questionFor(0)
	if q != introductoryBank[0] {
		t.Errorf("progress 0: got %q", q)
	}
	q, _ = questionFor(intermediateBankStart)
	if q != intermediateBank[0] {
		t.Errorf("progress %d: got %q", intermediateBankStart, q)
	}
	q, _ = questionFor(advancedBankStart)
	if q != advancedBank[0] {
		t.Errorf("progress %d: got %q", advancedBankStart, q)
	}
	// Clamped beyond the last advanced question
	q, _ = questionFor(QuestionSequenceLength + 3)
	if q != advancedBank[len(advancedBank)-1] {
		t.Errorf("clamping failed: got %q", q)
	}
}

func TestDefaultStudyPlanValidJSON(t *testing.T) {
	for _, level := range []models.ProficiencyLevel{
		models.LevelBeginner,
		models.LevelElementary,
		models.LevelIntermediate,
		models.LevelUpperIntermediate,
		models.LevelAdvanced,
		models.LevelUnassigned,
	} {
		var plan models.StudyPlan
		if err := json.Unmarshal([]byte(DefaultStudyPlan(level)), &plan); err != nil {
			t.Errorf("level %q: invalid JSON: %v", level, err)
		} else if len(plan.WeeklyPlans) == 0 {
			t.Errorf("level %q: empty plan", level)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	fenced := "```json\n{\"weekly_plans\":[]}\n```"
	if got := stripCodeFence(fenced); got != `{"weekly_plans":[]}` {
		t.Errorf("got %q", got)
	}
	plain := `{"weekly_plans":[]}`
	if got := stripCodeFence(plain); got != plain {
		t.Errorf("got %q", got)
	}
}
