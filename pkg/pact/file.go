package pact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type WriteMode int

const (
	// Overwrite replaces any existing pact file.
	Overwrite WriteMode = iota
	// Merge keeps the interactions of an existing file and replaces those with
	// the same description and provider states.
	Merge
)

func (m WriteMode) String() string {
	if m == Merge {
		return "merge"
	}
	return "overwrite"
}

// WriteFile writes p into dir under its conventional file name and returns the
// path written.
func WriteFile(p *Pact, dir string, mode WriteMode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create pact directory")
	}
	path := filepath.Join(dir, FileName(p.Consumer, p.Provider))

	existing, err := os.ReadFile(path)
	if mode == Overwrite || os.IsNotExist(err) {
		data, err := Marshal(p)
		if err != nil {
			return "", err
		}
		return path, writePactFile(path, data)
	}
	if err != nil {
		return "", errors.Wrap(err, "read existing pact file")
	}

	merged, err := merge(existing, p)
	if err != nil {
		return "", errors.Wrapf(err, "merge into %s", path)
	}
	return path, writePactFile(path, merged)
}

func writePactFile(path string, data []byte) error {
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(err, "write pact file")
	}
	log.Infof("pact file written to %s", path)
	return nil
}

func merge(existing []byte, p *Pact) ([]byte, error) {
	if !gjson.ValidBytes(existing) {
		return nil, errors.New("existing pact file is not valid JSON")
	}
	current, err := Parse(existing)
	if err != nil {
		return nil, err
	}
	if current.Consumer != p.Consumer || current.Provider != p.Provider {
		return nil, errors.Errorf("existing pact is between %s and %s", current.Consumer, current.Provider)
	}
	spec, err := ParseSpecification(string(p.Specification))
	if err != nil {
		return nil, err
	}
	if current.Specification != spec {
		return nil, errors.Errorf("existing pact uses specification %s, cannot merge %s", current.Specification, spec)
	}

	doc, err := document(p)
	if err != nil {
		return nil, err
	}
	out := existing
	for _, section := range []string{"interactions", "messages"} {
		items, _ := doc[section].([]any)
		for _, item := range items {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, errors.Wrap(err, "encode interaction")
			}
			target := fmt.Sprintf("%s.%d", section, indexOf(out, section, interactionKey(gjson.ParseBytes(raw))))
			if target == section+".-1" {
				log.WithField("interaction", gjson.GetBytes(raw, "description").String()).Debug("appending interaction to pact file")
			}
			if out, err = sjson.SetRawBytes(out, target, raw); err != nil {
				return nil, errors.Wrap(err, "update pact file")
			}
		}
	}
	if out, err = sjson.SetBytes(out, "metadata.pactKit.version", LibraryVersion); err != nil {
		return nil, errors.Wrap(err, "update pact metadata")
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, out, "", "  "); err != nil {
		return nil, errors.Wrap(err, "format pact file")
	}
	return indented.Bytes(), nil
}

// indexOf finds the interaction with key in a section of the document, or -1.
func indexOf(data []byte, section, key string) int {
	for n, v := range gjson.GetBytes(data, section).Array() {
		if interactionKey(v) == key {
			return n
		}
	}
	return -1
}

// interactionKey is the description and provider states of an interaction as
// written in a document of any version.
func interactionKey(v gjson.Result) string {
	c := Common{Description: v.Get("description").String()}
	if state := v.Get("providerState"); state.Exists() && state.String() != "" {
		c.ProviderStates = append(c.ProviderStates, ProviderState{Name: state.String()})
	}
	v.Get("providerStates").ForEach(func(_, s gjson.Result) bool {
		ps := ProviderState{Name: s.Get("name").String()}
		if params, ok := s.Get("params").Value().(map[string]any); ok && len(params) > 0 {
			ps.Params = params
		}
		c.ProviderStates = append(c.ProviderStates, ps)
		return true
	})
	return c.Key()
}
