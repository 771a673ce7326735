package channels

import (
	"errors"
	"testing"

	"aura/pkg/api"
	"aura/pkg/config"

	jsoniter "github.com/json-iterator/go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct {
	id string
}

func (c *stubChannel) ID() string                                                { return c.id }
func (c *stubChannel) Start(ctx api.ChannelContext) error                        { return nil }
func (c *stubChannel) Stop() error                                               { return nil }
func (c *stubChannel) Send(session api.SessionContext, message string) error     { return nil }
func (c *stubChannel) Stream(session api.SessionContext, ev <-chan api.Event) error {
	for range ev {
	}
	return nil
}

type stubFactory struct {
	channel api.Channel
	err     error
	gotCfg  jsoniter.RawMessage
}

func (f *stubFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	f.gotCfg = rawConfig
	return f.channel, f.err
}

func TestRegisterAndGetChannelFactory(t *testing.T) {
	f := &stubFactory{}
	RegisterChannel("stub-reg", f)

	got, ok := GetChannelFactory("stub-reg")
	require.True(t, ok)
	assert.Equal(t, f, got)

	_, ok = GetChannelFactory("never-registered")
	assert.False(t, ok)
}

func TestCreateFromConfig(t *testing.T) {
	good := &stubFactory{channel: &stubChannel{id: "good"}}
	failing := &stubFactory{err: errors.New("bad credentials")}
	declining := &stubFactory{} // nil channel, nil error

	RegisterChannel("stub-good", good)
	RegisterChannel("stub-fail", failing)
	RegisterChannel("stub-decline", declining)

	configs := map[string]jsoniter.RawMessage{
		"stub-good":    jsoniter.RawMessage(`{"token":"t"}`),
		"stub-fail":    jsoniter.RawMessage(`{}`),
		"stub-decline": jsoniter.RawMessage(`{}`),
		"unknown-type": jsoniter.RawMessage(`{}`),
	}

	created := CreateFromConfig(configs, config.DefaultSystemConfig())

	require.Len(t, created, 1)
	assert.Equal(t, "good", created[0].ID())
	assert.JSONEq(t, `{"token":"t"}`, string(good.gotCfg))
}
