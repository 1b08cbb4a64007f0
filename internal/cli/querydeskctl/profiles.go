package querydeskctl

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/querydesk/querydesk/internal/engine"
)

// ProfilesFile is the on-disk form of saved connections:
//
//	profiles:
//	  local-pg:
//	    engine: postgres
//	    host: localhost
//	    port: 5432
//	    user: postgres
//	    password: secret
//	    database: app
type ProfilesFile struct {
	Profiles map[string]engine.Descriptor `yaml:"profiles"`
}

func LoadProfiles(path string) (ProfilesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfilesFile{}, fmt.Errorf("read profiles file: %w", err)
	}
	var file ProfilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ProfilesFile{}, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	return file, nil
}

func (f ProfilesFile) Lookup(name string) (engine.Descriptor, error) {
	descriptor, ok := f.Profiles[name]
	if !ok {
		return engine.Descriptor{}, fmt.Errorf("profile %q not found (available: %v)", name, f.Names())
	}
	return descriptor, nil
}

func (f ProfilesFile) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
