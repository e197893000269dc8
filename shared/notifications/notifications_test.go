package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	errs  []error
	calls []*telego.SendMessageParams
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.calls = append(f.calls, params)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &telego.Message{MessageID: len(f.calls)}, nil
}

func newTestSender(api messageAPI) (*TelegramSender, *[]time.Duration) {
	s := newSender(api, Options{RateLimit: 1000, Burst: 10, MaxRetries: 3})
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestSendUsesMarkdownV2(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newTestSender(api)

	require.NoError(t, s.Send(context.Background(), 42, "*hi*"))
	require.Len(t, api.calls, 1)
	assert.Equal(t, int64(42), api.calls[0].ChatID.ID)
	assert.Equal(t, telego.ModeMarkdownV2, api.calls[0].ParseMode)
}

func TestSendHonorsRetryAfter(t *testing.T) {
	api := &fakeAPI{errs: []error{
		&ta.Error{ErrorCode: 429, Description: "Too Many Requests", Parameters: &ta.ResponseParameters{RetryAfter: 7}},
		nil,
	}}
	s, slept := newTestSender(api)

	require.NoError(t, s.Send(context.Background(), 1, "x"))
	assert.Len(t, api.calls, 2)
	assert.Equal(t, []time.Duration{7 * time.Second}, *slept)
}

func TestSendGivesUpOnBadRequest(t *testing.T) {
	api := &fakeAPI{errs: []error{&ta.Error{ErrorCode: 403, Description: "bot was blocked by the user"}}}
	s, _ := newTestSender(api)

	err := s.Send(context.Background(), 1, "x")
	require.Error(t, err)
	assert.Len(t, api.calls, 1)
}

func TestSendRetriesTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	api := &fakeAPI{errs: []error{boom, boom, boom}}
	s, slept := newTestSender(api)

	err := s.Send(context.Background(), 1, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, api.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestSendRejectsZeroChat(t *testing.T) {
	s, _ := newTestSender(&fakeAPI{})
	assert.Error(t, s.Send(context.Background(), 0, "x"))
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `0x12\_ab \- a\\b`, EscapeMarkdownV2(`0x12_ab - a\b`))
	assert.Equal(t, `1\.5M \(whale\)\!`, EscapeMarkdownV2("1.5M (whale)!"))
}
