package callback

import (
	"net/http"

	"github.com/form3tech-oss/pact-kit/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	StatePath = "/_pact/state"

	ActionSetup    = "setup"
	ActionTeardown = "teardown"
)

// StateHandler puts the provider into, or takes it out of, a named state.
type StateHandler func(state, action string, params map[string]any) error

// StateRoutes serves the provider state change callback.
func StateRoutes(handler StateHandler) func(*echo.Echo) {
	return func(e *echo.Echo) {
		e.POST(StatePath, func(c echo.Context) error {
			return stateHandler(c, handler)
		})
	}
}

type stateRequest struct {
	Consumer string         `json:"consumer"`
	State    string         `json:"state"`
	States   []string       `json:"states"`
	Action   string         `json:"action"`
	Params   map[string]any `json:"params"`
}

func stateHandler(c echo.Context, handler StateHandler) error {
	req := stateRequest{}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httpresponse.Reject(c, http.StatusBadRequest, "unable to parse provider state request. %s", err.Error())
		}
	} else {
		req.State = c.QueryParam("state")
		req.Action = c.QueryParam("action")
		req.Params = map[string]any{}
		for k, v := range c.QueryParams() {
			if k != "state" && k != "action" && len(v) > 0 {
				req.Params[k] = v[0]
			}
		}
	}

	if req.State == "" && len(req.States) > 0 {
		req.State = req.States[0]
	}
	if req.State == "" {
		return httpresponse.Reject(c, http.StatusBadRequest, "provider state request has no state")
	}
	if req.Action == "" {
		req.Action = ActionSetup
	}
	if req.Action != ActionSetup && req.Action != ActionTeardown {
		return httpresponse.Reject(c, http.StatusBadRequest, "unsupported provider state action %q", req.Action)
	}

	log.WithFields(log.Fields{
		"consumer": req.Consumer,
		"state":    req.State,
		"action":   req.Action,
	}).Info("provider state change")

	if err := handler(req.State, req.Action, req.Params); err != nil {
		return httpresponse.Reject(c, http.StatusInternalServerError, "provider state %q %s failed. %s", req.State, req.Action, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{})
}
