package assessment

// Question banks for the leveling protocol. The active bank escalates with
// the number of turns completed: early turns draw introductory questions,
// later turns progressively harder ones, so the scored answers reflect the
// hardest material the user could engage with.

var introductoryBank = []string{
	"What's your name?",
	"How are you today?",
	"Where are you from?",
	"What do you do for work or study?",
	"Do you like learning English? Why?",
}

var intermediateBank = []string{
	"What are your thoughts on climate change?",
	"How would you describe your ideal job?",
	"What changes would you like to see in your city?",
	"What's the most interesting place you've visited?",
	"What are your goals for learning English?",
}

var advancedBank = []string{
	"Could you elaborate on the implications of artificial intelligence in modern society?",
	"What are the most pressing challenges facing global education today?",
	"How do you think technology will shape the future of work?",
	"Discuss the role of social media in modern society.",
	"What measures could be taken to address environmental issues?",
}

// Bank escalation boundaries, in turns completed.
const (
	intermediateBankStart = 2
	advancedBankStart     = 4
)

// QuestionSequenceLength is the number of questions the escalating sequence
// yields before the final bank is exhausted.
const QuestionSequenceLength = advancedBankStart + 5

// questionFor returns the question to ask after `progress` turns have been
// completed, together with its position in the overall sequence. Indexing
// within a bank is clamped to the last question.
func questionFor(progress int) (text string, number int) {
	var bank []string
	var index int
	switch {
	case progress < intermediateBankStart:
		bank, index = introductoryBank, progress
	case progress < advancedBankStart:
		bank, index = intermediateBank, progress-intermediateBankStart
	default:
		bank, index = advancedBank, progress-advancedBankStart
	}
	if index < 0 {
		index = 0
	}
	if index >= len(bank) {
		index = len(bank) - 1
	}
	return bank[index], progress + 1
}

// bankExhausted reports whether the escalating question sequence has no
// further questions for the given number of completed turns.
func bankExhausted(progress int) bool {
	return progress >= QuestionSequenceLength
}
