package callback

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateCall struct {
	state  string
	action string
	params map[string]any
}

type CallbackStage struct {
	t            *testing.T
	assert       *assert.Assertions
	server       *Server
	calls        []stateCall
	stateErr     error
	producers    map[string]MessageProducer
	response     *http.Response
	responseBody []byte
}

func NewCallbackStage(t *testing.T) (*CallbackStage, *CallbackStage, *CallbackStage) {
	s := &CallbackStage{
		t:         t,
		assert:    assert.New(t),
		producers: map[string]MessageProducer{},
	}
	t.Cleanup(func() {
		if s.server != nil {
			_ = s.server.Shutdown(context.Background())
		}
	})
	return s, s, s
}

func (s *CallbackStage) and() *CallbackStage {
	return s
}

func (s *CallbackStage) a_state_server() *CallbackStage {
	s.start(StateRoutes(func(state, action string, params map[string]any) error {
		s.calls = append(s.calls, stateCall{state: state, action: action, params: params})
		return s.stateErr
	}))
	return s
}

func (s *CallbackStage) a_failing_state_handler() *CallbackStage {
	s.stateErr = errors.New("database unavailable")
	return s
}

func (s *CallbackStage) a_message_producer_for_(name string, msg Message) *CallbackStage {
	s.producers[name] = func(states []pact.ProviderState) (Message, error) {
		return msg, nil
	}
	return s
}

func (s *CallbackStage) a_message_relay() *CallbackStage {
	s.start(MessageRoutes(s.producers))
	return s
}

func (s *CallbackStage) start(routes func(*echo.Echo)) {
	server, err := Start(context.Background(), Options{}, routes)
	require.NoError(s.t, err)
	s.server = server
}

func (s *CallbackStage) a_post_to_(path, body string) *CallbackStage {
	res, err := http.Post(s.server.URL.String()+path, "application/json", bytes.NewBufferString(body))
	require.NoError(s.t, err)
	defer res.Body.Close()

	s.response = res
	s.responseBody, err = io.ReadAll(res.Body)
	require.NoError(s.t, err)
	return s
}

func (s *CallbackStage) a_post_without_body_to_(path string) *CallbackStage {
	res, err := http.Post(s.server.URL.String()+path, "", nil)
	require.NoError(s.t, err)
	defer res.Body.Close()

	s.response = res
	s.responseBody, err = io.ReadAll(res.Body)
	require.NoError(s.t, err)
	return s
}

func (s *CallbackStage) the_response_status_is_(status int) *CallbackStage {
	s.assert.Equal(status, s.response.StatusCode, string(s.responseBody))
	return s
}

func (s *CallbackStage) the_state_handler_was_called_with_(state, action string, params map[string]any) *CallbackStage {
	require.Len(s.t, s.calls, 1)
	s.assert.Equal(state, s.calls[0].state)
	s.assert.Equal(action, s.calls[0].action)
	s.assert.Equal(params, s.calls[0].params)
	return s
}

func (s *CallbackStage) the_state_handler_was_not_called() *CallbackStage {
	s.assert.Empty(s.calls)
	return s
}

func (s *CallbackStage) the_error_mentions_(text string) *CallbackStage {
	var body map[string]string
	require.NoError(s.t, json.Unmarshal(s.responseBody, &body))
	s.assert.Contains(body["error"], text)
	return s
}

func (s *CallbackStage) the_response_body_is_(expected string) *CallbackStage {
	s.assert.JSONEq(expected, string(s.responseBody))
	return s
}

func (s *CallbackStage) the_metadata_header_is_(expected string) *CallbackStage {
	raw, err := base64.StdEncoding.DecodeString(s.response.Header.Get(MetadataHeader))
	require.NoError(s.t, err)
	s.assert.JSONEq(expected, string(raw))
	return s
}
