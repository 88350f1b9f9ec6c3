package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	core.ParseEmailTemplates(nopLogger{})
	ResetSentMessages()

	conf := &core.Config{
		AppName:          "Masomo",
		FrontendBaseURL:  "https://masomo.test",
		DefaultFromEmail: mail.Address{Name: "Masomo", Address: "noreply@masomo.test"},
	}
	svc := NewConsoleServiceMock(conf, nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Student", Address: "student@test.cd"}},
			Subject:      "graded",
			TemplateName: "attempt_graded",
			TemplateData: map[string]interface{}{
				"Name":      "Student",
				"QuizTitle": "Algebra",
				"AttemptID": "attempt-id",
				"Ordinal":   2,
				"Score":     75.0,
				"MaxScore":  100.0,
				"HasPassed": true,
				"Passed":    true,
			},
		},
		// no recipients: dropped
		&core.EmailMessage{Subject: "lost", BodyStr: "lol"},
	)

	require.Len(t, SentMessages, 1)
	msg := SentMessages[0]
	assert.Contains(t, msg.TextContent, "Hi Student")
	assert.Contains(t, msg.TextContent, "75.00 / 100.00")
	assert.Contains(t, msg.TextContent, "passed")
	assert.Contains(t, msg.TextContent, "https://masomo.test/attempts/attempt-id")
	assert.Contains(t, msg.HTMLContent, "Algebra")
}
