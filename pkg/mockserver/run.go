package mockserver

import (
	"context"

	"github.com/form3tech-oss/pact-kit/pkg/mismatch"
	"github.com/form3tech-oss/pact-kit/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Result is what a mock server observed during Run.
type Result struct {
	Matched    bool
	Mismatches []mismatch.Mismatch
}

// Err returns a *mismatch.Error when the requests did not match.
func (r *Result) Err() error {
	if r == nil || r.Matched {
		return nil
	}
	return &mismatch.Error{Mismatches: r.Mismatches}
}

// Run starts a mock server for p, runs test against it, and shuts the server
// down on every path out. Mismatches are collected before shutdown, and the
// pact file is written when everything matched and cfg.WritePact is set.
// An error from test is returned as is, together with whatever was observed.
func Run(ctx context.Context, p *pact.Pact, cfg Config, test func(*Server) error) (result *Result, err error) {
	s, err := Start(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if shutdownErr := s.Shutdown(); shutdownErr != nil {
			log.Warn(shutdownErr)
			if err == nil {
				err = shutdownErr
			}
		}
	}()

	testErr := runTest(s, test)

	result = &Result{}
	if result.Matched, err = s.Matched(ctx); err != nil {
		return nil, withTestErr(testErr, err)
	}
	if !result.Matched {
		if result.Mismatches, err = s.Mismatches(ctx); err != nil {
			return nil, withTestErr(testErr, err)
		}
	}
	if testErr != nil {
		return result, testErr
	}

	if result.Matched && s.cfg.WritePact {
		if err := s.WritePactFile(ctx, s.cfg.PactDir, s.cfg.WriteMode == pact.Overwrite); err != nil {
			return result, err
		}
	}
	return result, nil
}

// withTestErr keeps a failed test's error as the cause when the mock
// server's outcome could not be collected either.
func withTestErr(testErr, err error) error {
	if testErr == nil {
		return err
	}
	return errors.Wrapf(testErr, "mock server result unavailable (%v)", err)
}

// runTest turns a panic in test into an error so the server is still released.
func runTest(s *Server, test func(*Server) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("test panicked: %v", r)
		}
	}()
	return test(s)
}
