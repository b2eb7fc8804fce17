package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Intent
	}{
		{
			name:   "nested read with count",
			output: `{"action": "read", "params": {"count": 10}}`,
			want:   Read{Count: 10},
		},
		{
			name:   "read without count defaults",
			output: `{"action": "read", "params": {}}`,
			want:   Read{Count: 5},
		},
		{
			name:   "read count is clamped",
			output: `{"action": "read", "count": 500}`,
			want:   Read{Count: 25},
		},
		{
			name:   "zero count falls back to default",
			output: `{"action": "read", "count": 0}`,
			want:   Read{Count: 5},
		},
		{
			name:   "flat delete",
			output: `{"action": "delete", "sender": "John Smith"}`,
			want:   Delete{Target: Target{Sender: "John Smith"}},
		},
		{
			name:   "respond with fences",
			output: "```json\n{\"action\":\"respond\",\"params\":{\"sender\":\"John\",\"reply_content\":\"I'll be late\"}}\n```",
			want:   Respond{Target: Target{Sender: "John"}, ReplyContent: "I'll be late"},
		},
		{
			name:   "email number is kept",
			output: `{"action": "delete", "params": {"email_number": 2}}`,
			want:   Delete{EmailNumber: 2},
		},
		{
			name:   "action is case insensitive",
			output: `{"action": " Delete ", "params": {"subject_keyword": "invoice"}}`,
			want:   Delete{Target: Target{SubjectKeyword: "invoice"}},
		},
		{name: "unknown action", output: `{"action": "order_pizza"}`, want: Unknown{}},
		{name: "explicit unknown", output: `{"action": "unknown", "params": {}}`, want: Unknown{}},
		{name: "malformed json", output: `{"action": "read",`, want: Unknown{}},
		{name: "not json", output: "Sure! Here are your emails.", want: Unknown{}},
		{name: "empty", output: "", want: Unknown{}},
		{name: "wrong type", output: `{"action": 3}`, want: Unknown{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.output, 5, 25))
		})
	}
}

func TestParams(t *testing.T) {
	assert.Equal(t, map[string]any{"count": 3}, Read{Count: 3}.Params())
	assert.Equal(t,
		map[string]any{"sender": "John Smith"},
		Delete{Target: Target{Sender: "John Smith"}}.Params(),
	)
	assert.Equal(t,
		map[string]any{"subject_keyword": "lunch", "reply_content": "yes", "email_number": 1},
		Respond{Target: Target{SubjectKeyword: "lunch"}, ReplyContent: "yes", EmailNumber: 1}.Params(),
	)
	assert.Empty(t, Unknown{}.Params())
}

func TestTargetEmpty(t *testing.T) {
	assert.True(t, Target{}.Empty())
	assert.False(t, Target{Sender: "a"}.Empty())
	assert.False(t, Target{SubjectKeyword: "b"}.Empty())
}

type fakeCompleter struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func TestClassifierClassify(t *testing.T) {
	llm := &fakeCompleter{out: `{"action": "read", "params": {"count": 10}}`}
	c := NewClassifier(llm, 5, 25, zap.NewNop())

	in, err := c.Classify(context.Background(), "Show me my last 10 emails")
	require.NoError(t, err)
	assert.Equal(t, Read{Count: 10}, in)
	assert.Equal(t, []string{"Show me my last 10 emails"}, llm.prompts)
}

func TestClassifierMalformedOutputIsUnknown(t *testing.T) {
	c := NewClassifier(&fakeCompleter{out: "I can't help with that"}, 5, 25, zap.NewNop())

	in, err := c.Classify(context.Background(), "Can you order me a pizza?")
	require.NoError(t, err)
	assert.Equal(t, ActionUnknown, in.Action())
}

func TestClassifierTransportError(t *testing.T) {
	boom := errors.New("upstream down")
	c := NewClassifier(&fakeCompleter{err: boom}, 5, 25, zap.NewNop())

	_, err := c.Classify(context.Background(), "read my mail")
	assert.ErrorIs(t, err, boom)
}
