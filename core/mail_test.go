package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	type data struct {
		StudentName string
		SubjectName string
		Value       float64
		Kind        string
		Notes       string
	}

	tests := []struct {
		name     string
		msg      EmailMessage
		wantErr  bool
		wantText string
		wantHTML bool
	}{
		{
			name:     "plain body",
			msg:      EmailMessage{BodyStr: "hello"},
			wantText: "hello",
		},
		{
			name: "template",
			msg: EmailMessage{
				TemplateName: "grade_posted",
				TemplateData: data{StudentName: "Hero", SubjectName: "Mathematics", Value: 8.5},
			},
			wantText: "Hello Hero,\n\nA new grade was posted in Mathematics: 8.50.\n\nLog in to see your grades: http://front.test/grades\n\n--\nShule - http://front.test\n",
			wantHTML: true,
		},
		{
			name:    "unknown template",
			msg:     EmailMessage{TemplateName: "lol"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render("Shule", "http://front.test")
			if tt.wantErr {
				assert.True(t, IsNotFound(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, msg.TextContent)
			assert.Equal(t, tt.wantHTML, msg.HTMLContent != "")
		})
	}
}

func TestEmailMessage_Has(t *testing.T) {
	msg := EmailMessage{}
	assert.False(t, msg.HasRecipients())
	assert.False(t, msg.HasContent())
	assert.False(t, msg.HasAttachments())

	msg.To = []mail.Address{{Address: "hero@test.cd"}}
	msg.HTMLContent = "<p>hi</p>"
	assert.True(t, msg.HasRecipients())
	assert.True(t, msg.HasContent())
}
