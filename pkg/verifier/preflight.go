package verifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

type filters struct {
	description *regexp.Regexp
	state       *regexp.Regexp
	noState     bool
	consumers   map[string]bool
}

func (v *Verifier) compileFilters() (filters, error) {
	f := filters{noState: v.noState}
	var err error
	if v.descriptionFilter != "" {
		if f.description, err = regexp.Compile(v.descriptionFilter); err != nil {
			return f, configErrorf("description filter", "%v", err)
		}
	}
	if v.stateFilter != "" {
		if f.state, err = regexp.Compile(v.stateFilter); err != nil {
			return f, configErrorf("state filter", "%v", err)
		}
	}
	if f.noState && f.state != nil {
		return f, configErrorf("state filter", "cannot filter on a state and on no state at once")
	}
	if len(v.consumers) > 0 {
		f.consumers = map[string]bool{}
		for _, c := range v.consumers {
			f.consumers[c] = true
		}
	}
	return f, nil
}

func (f filters) keep(description string, states []string) bool {
	if f.description != nil && !f.description.MatchString(description) {
		return false
	}
	if f.noState {
		return len(states) == 0
	}
	if f.state != nil {
		for _, s := range states {
			if f.state.MatchString(s) {
				return true
			}
		}
		return false
	}
	return true
}

// expandSources splits the sources into local pact files and URLs. Directories
// contribute the *.json files directly inside them.
func (v *Verifier) expandSources() (files, urls []string, err error) {
	for _, s := range v.sources {
		switch s.kind {
		case "url":
			urls = append(urls, s.path)
		case "dir":
			entries, err := os.ReadDir(s.path)
			if err != nil {
				return nil, nil, configErrorf("directory", "read %s: %v", s.path, err)
			}
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
					files = append(files, filepath.ToSlash(filepath.Join(s.path, e.Name())))
				}
			}
		default:
			if _, err := os.Stat(s.path); err != nil {
				return nil, nil, configErrorf("file", "pact file %s: %v", s.path, err)
			}
			files = append(files, filepath.ToSlash(s.path))
		}
	}
	return files, urls, nil
}

// localPact is what the pre-flight learnt about one local pact file.
type localPact struct {
	path     string
	consumer string
	states   []string
}

// preflight reads the local pact files, drops those from other consumers and
// collects the provider states of the interactions the filters keep.
func preflight(files []string, f filters) ([]localPact, error) {
	var out []localPact
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read pact file %s", path)
		}
		if !gjson.ValidBytes(data) {
			return nil, configErrorf("file", "%s is not valid JSON", path)
		}
		consumer := gjson.GetBytes(data, "consumer.name").String()
		if f.consumers != nil && !f.consumers[consumer] {
			log.WithField("consumer", consumer).Debugf("skipping %s", path)
			continue
		}

		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "decode pact file %s", path)
		}
		lp := localPact{path: path, consumer: consumer}
		seen := map[string]bool{}
		for _, interaction := range interactions(doc) {
			description, _ := interaction["description"].(string)
			states := stateNames(interaction)
			if !f.keep(description, states) {
				continue
			}
			for _, s := range states {
				if !seen[s] {
					seen[s] = true
					lp.states = append(lp.states, s)
				}
			}
		}
		out = append(out, lp)
	}
	return out, nil
}

func interactions(doc any) []map[string]any {
	var out []map[string]any
	for _, path := range []string{"$.interactions[*]", "$.messages[*]"} {
		for _, item := range query(path, doc) {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

// stateNames returns the provider states of an interaction, reading both the
// V3 "providerStates" list and the V2 "providerState" string.
func stateNames(interaction map[string]any) []string {
	var names []string
	for _, v := range query("$.providerStates[*].name", interaction) {
		if s, ok := v.(string); ok && s != "" {
			names = append(names, s)
		}
	}
	if s, ok := interaction["providerState"].(string); ok && s != "" {
		names = append(names, s)
	}
	return names
}

// query evaluates a JSONPath, treating a missing key as no results.
func query(path string, doc any) []any {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return nil
}

// missingStates returns the states declared by pacts that have no handler.
func missingStates(pacts []localPact, handlers map[string]StateFunc) []string {
	seen := map[string]bool{}
	var missing []string
	for _, p := range pacts {
		for _, s := range p.states {
			if _, ok := handlers[s]; !ok && !seen[s] {
				seen[s] = true
				missing = append(missing, s)
			}
		}
	}
	sort.Strings(missing)
	return missing
}
