package app_test

import (
	"sync"
	"time"

	"code-quizzer/internal/domain"
)

// manualTicker hands out tick channels the test drives by hand.
type manualTicker struct {
	mu    sync.Mutex
	ch    chan time.Time
	stops int
}

func (m *manualTicker) start(time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ch = make(chan time.Time)
	return m.ch, func() {
		m.mu.Lock()
		m.stops++
		m.mu.Unlock()
	}
}

func (m *manualTicker) tick() {
	m.mu.Lock()
	ch := m.ch
	m.mu.Unlock()
	ch <- time.Now()
}

func (m *manualTicker) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func loopsTopic() domain.Topic {
	return domain.Topic{
		Name: "loops",
		Questions: []domain.Question{
			{Text: "Which loop checks its condition last?", Options: []string{"for", "while", "do-while"}, Correct: "do-while", Difficulty: 5},
			{Text: "Which keyword skips to the next iteration?", Options: []string{"break", "continue"}, Correct: "continue", Difficulty: 15},
			{Text: "How many times does for i := 0; i < 3; i++ run?", Options: []string{"2", "3", "4"}, Correct: "3", Difficulty: 25},
		},
		Resources: []domain.Resource{{Title: "Go by Example: For", URL: "https://gobyexample.com/for"}},
	}
}

func variablesTopic() domain.Topic {
	return domain.Topic{
		Name: "variables",
		Questions: []domain.Question{
			{Text: "Which keyword declares a variable?", Options: []string{"var", "let"}, Correct: "var", Difficulty: 5},
			{Text: "What is the zero value of an int?", Options: []string{"0", "nil"}, Correct: "0", Difficulty: 5},
		},
	}
}

func testBank() domain.Bank {
	return domain.Bank{Topics: []domain.Topic{variablesTopic(), loopsTopic()}}
}
