// Package report holds the recognized-question set and the pure
// status-string templating. Nothing here performs I/O beyond loading
// the question file once.
package report

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
	"github.com/fairyhunter13/sensor-relay/pkg/textx"
)

//go:embed questions.yaml
var defaultQuestionsYAML []byte

// User-facing fixed messages.
const (
	// NoDataMessage is sent when a question arrives before any reading.
	NoDataMessage = "ยังไม่มีข้อมูลจากเซ็นเซอร์เลย ลองใหม่อีกครั้งนะ"
	// PleaseWaitMessage acknowledges a recognized question before the
	// model call.
	PleaseWaitMessage = "รอสักครู่นะ กำลังคิดคำตอบให้อยู่..."
	// FailureNotice replaces silence when the model call fails.
	FailureNotice = "ขอโทษด้วย ตอนนี้ตอบคำถามไม่ได้ ลองใหม่อีกครั้งภายหลังนะ"
)

// QuestionSet is the closed set of questions answered through the model.
type QuestionSet struct {
	Questions  []string `yaml:"questions"`
	normalized map[string]struct{}
}

// Load returns the question set from path, or the embedded default when
// path is empty.
func Load(path string) (QuestionSet, error) {
	raw := defaultQuestionsYAML
	if path != "" {
		b, err := os.ReadFile(path) //nolint:gosec // Path comes from operator config.
		if err != nil {
			return QuestionSet{}, fmt.Errorf("op=report.load: %w", err)
		}
		raw = b
	}
	var qs QuestionSet
	if err := yaml.Unmarshal(raw, &qs); err != nil {
		return QuestionSet{}, fmt.Errorf("op=report.load: %w", err)
	}
	qs.normalized = make(map[string]struct{}, len(qs.Questions))
	for _, q := range qs.Questions {
		qs.normalized[normalizeQuestion(q)] = struct{}{}
	}
	return qs, nil
}

// Recognized reports whether text matches one of the supported questions.
func (qs QuestionSet) Recognized(text string) bool {
	_, ok := qs.normalized[normalizeQuestion(text)]
	return ok
}

func normalizeQuestion(s string) string {
	s = textx.NormalizeSpace(s)
	s = strings.TrimRight(s, "?？ ")
	return s
}

// Status renders the direct formatted summary of the current reading.
func Status(r domain.SensorReading) string {
	return fmt.Sprintf(
		"สภาพแวดล้อมตอนนี้\n- แสง: %.0f lux\n- อุณหภูมิ: %.1f °C\n- ความชื้น: %.0f %%",
		r.Light, r.Temperature, r.Humidity)
}

// Answer renders the reply carrying the model's answer to a question.
func Answer(question, answer string) string {
	return fmt.Sprintf("%s?\n- answer: %s", strings.TrimRight(strings.TrimSpace(question), "?？"), answer)
}

// Broadcast renders the periodic push report. lead is the
// model-composed summary; when empty, the raw status stands alone.
func Broadcast(r domain.SensorReading, lead string) string {
	status := Status(r)
	if strings.TrimSpace(lead) == "" {
		return status
	}
	return lead + "\n\n" + status
}
