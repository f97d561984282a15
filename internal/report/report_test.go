package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sensor-relay/internal/domain"
)

func TestLoad_EmbeddedDefault(t *testing.T) {
	t.Parallel()
	qs, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, qs.Questions)
	assert.True(t, qs.Recognized("ตอนนี้ควรตากผ้าไหม"))
}

func TestLoad_FileOverride(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - is it raining\n"), 0o600))

	qs, err := Load(path)
	require.NoError(t, err)
	assert.True(t, qs.Recognized("is it raining?"))
	assert.False(t, qs.Recognized("ตอนนี้ควรตากผ้าไหม"), "override replaces the embedded set")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRecognized_NormalizesPunctuationAndSpace(t *testing.T) {
	t.Parallel()
	qs, err := Load("")
	require.NoError(t, err)

	assert.True(t, qs.Recognized("  ตอนนี้ควรตากผ้าไหม  "))
	assert.True(t, qs.Recognized("ตอนนี้ควรตากผ้าไหม?"))
	assert.True(t, qs.Recognized("ตอนนี้ควรตากผ้าไหม？"))
	assert.False(t, qs.Recognized("ตากผ้า"))
	assert.False(t, qs.Recognized(""))
}

func TestStatus_RendersAllThreeValues(t *testing.T) {
	t.Parallel()
	s := Status(domain.SensorReading{Light: 20000, Temperature: 32.5, Humidity: 55})
	assert.Contains(t, s, "20000 lux")
	assert.Contains(t, s, "32.5 °C")
	assert.Contains(t, s, "55 %")
}

func TestAnswer_NormalizesTrailingQuestionMark(t *testing.T) {
	t.Parallel()
	want := "ตอนนี้ควรตากผ้าไหม?\n- answer: ตากได้เลย"
	assert.Equal(t, want, Answer("ตอนนี้ควรตากผ้าไหม", "ตากได้เลย"))
	assert.Equal(t, want, Answer("ตอนนี้ควรตากผ้าไหม?", "ตากได้เลย"))
	assert.Equal(t, want, Answer(" ตอนนี้ควรตากผ้าไหม？ ", "ตากได้เลย"))
}

func TestBroadcast_LeadOptional(t *testing.T) {
	t.Parallel()
	r := domain.SensorReading{Light: 100, Temperature: 25, Humidity: 40}
	status := Status(r)

	assert.Equal(t, status, Broadcast(r, ""))
	assert.Equal(t, status, Broadcast(r, "   "))
	assert.Equal(t, "สรุป\n\n"+status, Broadcast(r, "สรุป"))
}
