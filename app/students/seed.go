package students

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is a yaml file with students to import, i.e.
//
//	students:
//	  - name: alice
//	  - name: bob
type Seed struct {
	Students []struct {
		Name string `yaml:"name"`
	} `yaml:"students"`
}

// LoadSeed reads and parses seed file
func LoadSeed(fname string) (*Seed, error) {
	data, err := os.ReadFile(fname) // nolint gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	res := &Seed{}
	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", fname, err)
	}
	return res, nil
}

// Import adds all students from the seed file, returns number of added
func (s *Store) Import(ctx context.Context, fname string) (int, error) {
	seed, err := LoadSeed(fname)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, st := range seed.Students {
		id, err := s.Add(ctx, st.Name)
		if err != nil {
			return count, err
		}
		s.logger.Logf("[DEBUG] imported %q as %d", st.Name, id)
		count++
	}
	return count, nil
}
