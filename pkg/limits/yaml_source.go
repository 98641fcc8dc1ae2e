package limits

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the on-disk plan file layout:
//
//	plans:
//	  - id: free
//	    name: Free
//	    limits: {analyses: 3, projects: 1}
//	    features: [basic_scan]
type yamlDocument struct {
	Plans []Plan `yaml:"plans"`
}

type yamlSource struct {
	path string
	data []byte
}

// NewYAMLFileSource returns a Source that reads plans from a YAML file on
// every Load.
func NewYAMLFileSource(path string) Source {
	return &yamlSource{path: path}
}

// NewYAMLSource returns a Source that parses plans from data.
func NewYAMLSource(data []byte) Source {
	return &yamlSource{data: bytes.Clone(data)}
}

func (s *yamlSource) Load(context.Context) (map[string]Plan, error) {
	data := s.data
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, err
		}
		data = b
	}

	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrInvalidPlanConfiguration, err)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("plan without id"))
		}
		if _, dup := plans[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan %s", p.ID))
		}
		plans[p.ID] = p
	}
	return plans, nil
}
