package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/form3tech-oss/pact-kit/internal/app/engine"
	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const controlHeader = "X-Pact-Mock-Service"

// Register replaces the interactions the mock service expects with the HTTP
// interactions of p.
func (s *Server) Register(ctx context.Context, p *pact.Pact) error {
	if s.isClosed() {
		return ErrShutdown
	}
	interactions, err := pact.HTTPInteractionsJSON(p)
	if err != nil {
		return err
	}

	if _, err := s.call(ctx, http.MethodDelete, "/interactions", nil); err != nil {
		return errors.Wrap(err, "clear interactions")
	}

	body := map[string]any{"interactions": interactions}
	if len(interactions) > 0 {
		body["example_description"] = interactions[0]["description"]
	}
	if _, err := s.call(ctx, http.MethodPut, "/interactions", body); err != nil {
		return errors.Wrap(err, "register interactions")
	}
	s.pact = p
	log.WithField("url", s.URL.String()).Infof("registered %d interactions", len(interactions))
	return nil
}

// Matched reports whether the mock service received exactly the expected requests.
func (s *Server) Matched(ctx context.Context) (bool, error) {
	if s.isClosed() {
		return false, ErrShutdown
	}
	status, _, err := s.verification(ctx)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// Mismatches returns what differed between the expected and received
// requests. Query it before Shutdown.
func (s *Server) Mismatches(ctx context.Context) ([]mismatch.Mismatch, error) {
	if s.isClosed() {
		return nil, ErrShutdown
	}
	status, body, err := s.verification(ctx)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return nil, nil
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		if mismatches, err := mismatch.FromJSON(trimmed); err == nil {
			return mismatches, nil
		}
	}
	return parseVerificationText(string(body)), nil
}

// verification returns the status and body of the verification endpoint. A
// failed verification is not an error.
func (s *Server) verification(ctx context.Context) (int, []byte, error) {
	res, err := s.do(ctx, http.MethodGet, "/interactions/verification", nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "verify interactions")
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read verification")
	}
	switch res.StatusCode {
	case http.StatusOK, http.StatusInternalServerError:
		return res.StatusCode, body, nil
	}
	return 0, nil, &engine.Error{Code: res.StatusCode, Message: strings.TrimSpace(string(body))}
}

// WritePactFile asks the mock service to write the pact file into dir. V4
// pacts are written by this package, as the engine cannot write them.
func (s *Server) WritePactFile(ctx context.Context, dir string, overwrite bool) error {
	if s.isClosed() {
		return ErrShutdown
	}
	mode := pact.Merge
	if overwrite {
		mode = pact.Overwrite
	}

	if spec, _ := pact.ParseSpecification(string(s.pact.Specification)); spec == pact.V4 {
		_, err := pact.WriteFile(s.pact, dir, mode)
		return err
	}

	body := map[string]any{
		"consumer":            map[string]string{"name": s.pact.Consumer},
		"provider":            map[string]string{"name": s.pact.Provider},
		"pact_dir":            dir,
		"pactfile_write_mode": mode.String(),
	}
	if _, err := s.call(ctx, http.MethodPost, "/pact", body); err != nil {
		return errors.Wrap(err, "write pact file")
	}
	log.Infof("pact file for %s written to %s", s.pact.Consumer, dir)
	return nil
}

// call sends a control plane request and fails on any non 2xx status.
func (s *Server) call(ctx context.Context, method, path string, body any) ([]byte, error) {
	res, err := s.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s", method, path)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &engine.Error{Code: res.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (s *Server) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode control request")
		}
		log.Debugf("%s %s %s", method, path, b)
		reader = bytes.NewReader(b)
	}

	r, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(s.URL.String(), "/")+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build control request")
	}
	r.Header.Set(controlHeader, "true")
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	return s.cfg.Client.Do(r)
}
