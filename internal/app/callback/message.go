package callback

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/form3tech-oss/pact-kit/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	MessagePath    = "/_pact/message"
	MetadataHeader = "Pact-Message-Metadata"
)

// Message is a message produced by the provider for verification.
type Message struct {
	Contents    any
	ContentType string
	Metadata    map[string]any
}

// MessageProducer produces the message described by an interaction, given
// its provider states.
type MessageProducer func(states []pact.ProviderState) (Message, error)

type messageRequest struct {
	Description    string               `json:"description"`
	ProviderStates []pact.ProviderState `json:"providerStates"`
}

// MessageRoutes serves the message relay. Producers are looked up by
// interaction description, then by the name of each provider state.
func MessageRoutes(producers map[string]MessageProducer) func(*echo.Echo) {
	return func(e *echo.Echo) {
		e.GET("/ping", func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"ping": "pong"})
		})
		e.POST("/", func(c echo.Context) error {
			return messageHandler(c, producers, true)
		})
		e.POST(MessagePath, func(c echo.Context) error {
			return messageHandler(c, producers, false)
		})
	}
}

// messageHandler answers with {"contents": ...} when wrap is set, and with the
// bare contents plus a metadata header otherwise.
func messageHandler(c echo.Context, producers map[string]MessageProducer, wrap bool) error {
	req := messageRequest{}
	if err := c.Bind(&req); err != nil {
		return httpresponse.Reject(c, http.StatusBadRequest, "unable to parse message request. %s", err.Error())
	}

	producer, ok := findProducer(producers, req)
	if !ok {
		return httpresponse.Reject(c, http.StatusNotFound, "no message producer for %q", req.Description)
	}

	log.WithField("description", req.Description).Info("producing message")
	msg, err := producer(req.ProviderStates)
	if err != nil {
		return httpresponse.Reject(c, http.StatusInternalServerError, "message producer for %q failed. %s", req.Description, err.Error())
	}

	if wrap {
		return c.JSON(http.StatusOK, map[string]any{"contents": msg.Contents})
	}

	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return httpresponse.Reject(c, http.StatusInternalServerError, "unable to encode message metadata. %s", err.Error())
		}
		c.Response().Header().Set(MetadataHeader, base64.StdEncoding.EncodeToString(b))
	}

	contentType := msg.ContentType
	switch body := msg.Contents.(type) {
	case []byte:
		if contentType == "" {
			contentType = echo.MIMEOctetStream
		}
		return c.Blob(http.StatusOK, contentType, body)
	case string:
		if contentType == "" || strings.HasPrefix(contentType, "text/") {
			if contentType == "" {
				contentType = echo.MIMETextPlainCharsetUTF8
			}
			return c.Blob(http.StatusOK, contentType, []byte(body))
		}
	}
	if contentType == "" {
		return c.JSON(http.StatusOK, msg.Contents)
	}
	b, err := json.Marshal(msg.Contents)
	if err != nil {
		return httpresponse.Reject(c, http.StatusInternalServerError, "unable to encode message. %s", err.Error())
	}
	return c.Blob(http.StatusOK, contentType, b)
}

func findProducer(producers map[string]MessageProducer, req messageRequest) (MessageProducer, bool) {
	if p, ok := producers[req.Description]; ok {
		return p, true
	}
	for _, s := range req.ProviderStates {
		if p, ok := producers[s.Name]; ok {
			return p, true
		}
	}
	return nil, false
}
