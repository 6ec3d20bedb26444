package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Level maps an aggregate level name to its polygon table.
type Level struct {
	Name  string `koanf:"name"`
	Table string `koanf:"table"`
}

// Infrastructure maps an infrastructure layer name to its table.
type Infrastructure struct {
	Name  string `koanf:"name"`
	Table string `koanf:"table"`
}

// Layers is the catalogue of tables the server may query. Order matters:
// the first level is the fallback for unknown level names.
type Layers struct {
	Levels         []Level          `koanf:"levels"`
	Infrastructure []Infrastructure `koanf:"infrastructure"`
}

// DefaultLayers returns the Jakarta boundary and infrastructure tables.
func DefaultLayers() Layers {
	return Layers{
		Levels: []Level{
			{Name: "city", Table: "jkt_city_boundary"},
			{Name: "subdistrict", Table: "jkt_subdistrict_boundary"},
			{Name: "village", Table: "jkt_village_boundary"},
			{Name: "rw", Table: "jkt_rw_boundary"},
		},
		Infrastructure: []Infrastructure{
			{Name: "waterways", Table: "waterways"},
			{Name: "pumps", Table: "pumps"},
			{Name: "floodgates", Table: "floodgates"},
		},
	}
}

// LoadLayers layers an optional YAML file over DefaultLayers. A list present
// in the file replaces the default list entirely.
func LoadLayers(path string) (Layers, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultLayers(), "koanf"), nil); err != nil {
		return Layers{}, fmt.Errorf("load default layers: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Layers{}, fmt.Errorf("load layers file %s: %w", path, err)
		}
	}

	var l Layers
	if err := k.Unmarshal("", &l); err != nil {
		return Layers{}, fmt.Errorf("unmarshal layers: %w", err)
	}
	if err := l.validate(); err != nil {
		return Layers{}, err
	}
	return l, nil
}

func (l Layers) validate() error {
	seen := make(map[string]bool)
	for _, lv := range l.Levels {
		if lv.Name == "" || lv.Table == "" {
			return fmt.Errorf("aggregate level needs a name and a table: %+v", lv)
		}
		if seen[lv.Name] {
			return fmt.Errorf("duplicate aggregate level %q", lv.Name)
		}
		seen[lv.Name] = true
	}
	for _, in := range l.Infrastructure {
		if in.Name == "" || in.Table == "" {
			return fmt.Errorf("infrastructure layer needs a name and a table: %+v", in)
		}
	}
	return nil
}

// Level returns the level named name.
func (l Layers) Level(name string) (Level, bool) {
	for _, lv := range l.Levels {
		if lv.Name == name {
			return lv, true
		}
	}
	return Level{}, false
}

// LevelOrDefault returns the level named name, or the first level when no
// such level exists.
func (l Layers) LevelOrDefault(name string) Level {
	if lv, ok := l.Level(name); ok {
		return lv
	}
	if len(l.Levels) == 0 {
		return Level{}
	}
	return l.Levels[0]
}

// InfrastructureTable returns the table for the named infrastructure layer.
func (l Layers) InfrastructureTable(name string) (string, bool) {
	for _, in := range l.Infrastructure {
		if in.Name == name {
			return in.Table, true
		}
	}
	return "", false
}
