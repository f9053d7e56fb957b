package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"platecrane/internal/labware"
)

// LabwareFile is the YAML document referenced by labware_file. Entries replace
// the configured entry of the same name; other entries are kept.
type LabwareFile struct {
	PlateTypes map[string]labware.PlateSpec `yaml:"plate_types"`
	Locations  map[string]Location          `yaml:"locations"`
}

// ReadLabwareFile parses a YAML labware document.
func ReadLabwareFile(path string) (LabwareFile, error) {
	var doc LabwareFile
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read labware file: %w", err)
	}
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return doc, fmt.Errorf("parse labware file %s: %w", path, err)
	}
	return doc, nil
}

func (c *Config) applyLabwareFile(baseDir string) error {
	path := strings.TrimSpace(c.LabwareFile)
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "~") && !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("labware_file: %w", err)
	}
	c.LabwareFile = resolved

	doc, err := ReadLabwareFile(resolved)
	if err != nil {
		return err
	}
	if c.PlateTypes == nil {
		c.PlateTypes = make(map[string]labware.PlateSpec, len(doc.PlateTypes))
	}
	for name, spec := range doc.PlateTypes {
		c.PlateTypes[name] = spec
	}
	if c.Locations == nil {
		c.Locations = make(map[string]Location, len(doc.Locations))
	}
	for name, loc := range doc.Locations {
		c.Locations[name] = loc
	}
	return nil
}
