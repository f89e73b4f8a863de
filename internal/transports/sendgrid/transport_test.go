package sendgrid

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailkit/internal/core"
)

type fakeAPI struct {
	sent     *mail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeAPI) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	return f.response, f.err
}

func TestNewTransport_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewTransport(core.TransportSettings{})
	require.ErrorIs(t, err, &core.ValidationError{})

	tr, err := NewTransport(core.TransportSettings{"api_key": "SG.key"})
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", tr.Name())
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"sg-123"}},
	}}
	tr := &Transport{client: api, config: core.TransportSettings{"api_key": "SG.key"}}

	res, err := tr.Send(context.Background(), &core.Message{
		From:     "Team <team@example.com>",
		To:       "a@example.com",
		BCC:      "b@example.com",
		Subject:  "Hello",
		Text:     "Hello world",
		HTML:     "<b>Hello world</b>",
		Metadata: map[string]string{"campaign": "spring"},
		Attachments: []core.Attachment{
			{Filename: "a.txt", Content: []byte("hi")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "sg-123", res.MessageID)
	assert.Equal(t, "202 Accepted", res.Response)

	sent := api.sent
	require.NotNil(t, sent)
	assert.Equal(t, "team@example.com", sent.From.Address)
	require.Len(t, sent.Personalizations, 1)
	assert.Len(t, sent.Personalizations[0].To, 1)
	assert.Len(t, sent.Personalizations[0].BCC, 1)
	require.Len(t, sent.Content, 2)
	assert.Equal(t, "text/plain", sent.Content[0].Type)
	assert.Equal(t, "spring", sent.CustomArgs["campaign"])
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "aGk=", sent.Attachments[0].Content)
}

func TestTransport_SendAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{name: "bad request", status: 400, temporary: false},
		{name: "rate limited", status: 429, temporary: true},
		{name: "server error", status: 503, temporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{response: &rest.Response{StatusCode: tt.status, Body: `{"errors":[]}`}}
			tr := &Transport{client: api}

			_, err := tr.Send(context.Background(), &core.Message{From: "a@example.com", To: "b@example.com", Text: "x"})

			var terr *core.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.status, terr.StatusCode)
			assert.Equal(t, tt.temporary, core.IsTemporary(err))
		})
	}
}

func TestTransport_SendNetworkError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: i/o timeout")
	tr := &Transport{client: &fakeAPI{err: cause}}

	_, err := tr.Send(context.Background(), &core.Message{From: "a@example.com", To: "b@example.com", Text: "x"})

	require.ErrorIs(t, err, cause)
	assert.True(t, core.IsRetryable(err))
}
