package usecase

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		// Best effort; a nil encoder falls back to a rune bound.
		enc, _ = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	return enc
}

// BuildPrompt renders a bounded natural-language prompt embedding the
// three sensor values and the user's question. maxTokens bounds the
// whole prompt; the question is trimmed first when over budget.
func BuildPrompt(question string, r domain.SensorReading, maxTokens int) string {
	prompt := render(question, r)
	if maxTokens <= 0 {
		return prompt
	}
	if e := encoding(); e != nil {
		tokens := e.Encode(prompt, nil, nil)
		if len(tokens) <= maxTokens {
			return prompt
		}
		overshoot := len(tokens) - maxTokens
		qTokens := e.Encode(question, nil, nil)
		if overshoot >= len(qTokens) {
			return render("", r)
		}
		question = e.Decode(qTokens[:len(qTokens)-overshoot])
		return render(question, r)
	}
	// No encoder available: approximate with a rune bound.
	if runes := []rune(prompt); len(runes) > maxTokens*4 {
		keep := maxTokens * 4
		qRunes := []rune(question)
		cut := len(runes) - keep
		if cut >= len(qRunes) {
			return render("", r)
		}
		return render(string(qRunes[:len(qRunes)-cut]), r)
	}
	return prompt
}

func render(question string, r domain.SensorReading) string {
	return fmt.Sprintf(
		"ขณะนี้ค่าแสงคือ %.0f lux อุณหภูมิ %.1f องศาเซลเซียส ความชื้น %.0f%% "+
			"ช่วยตอบคำถามต่อไปนี้แบบสั้นและเป็นกันเอง: %s",
		r.Light, r.Temperature, r.Humidity, question)
}
