package layers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/urbangrammar/demoland-assistant/internal/geo"
	"github.com/urbangrammar/demoland-assistant/internal/signature"
)

// Default attribute names, matching the DemoLand Tyne and Wear datasets.
const (
	DefaultSignatureField   = "type"
	DefaultRegionField      = "name"
	DefaultDeprivationField = "imd_score"
	DefaultGeographyField   = "OA11CD"
)

func (c *Cache) source(name string) Source {
	switch name {
	case Signatures:
		return withDefault(c.sources.Signatures, DefaultSignatureField)
	case Regions:
		return withDefault(c.sources.Regions, DefaultRegionField)
	case Deprivation:
		return withDefault(c.sources.Deprivation, DefaultDeprivationField)
	case Geography:
		return withDefault(c.sources.Geography, DefaultGeographyField)
	default:
		return Source{}
	}
}

func withDefault(s Source, field string) Source {
	if s.Field == "" {
		s.Field = field
	}
	return s
}

func (c *Cache) readLayer(name string) (*geo.Layer, error) {
	src := c.source(name)
	layer, err := readGeometry(name, src.Path)
	if err != nil {
		return nil, err
	}
	if err := canonicalise(name, src.Field, layer); err != nil {
		return nil, err
	}
	return layer, nil
}

func readGeometry(name, path string) (*geo.Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return geo.ReadShapefile(name, path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "layers: read file")
		}
		return geo.ReadGeoJSON(name, data)
	default:
		return nil, eris.Errorf("layers: unsupported geometry format %q", filepath.Ext(path))
	}
}

// canonicalise copies each feature's key attribute onto the canonical
// property for its layer, validating it on the way.
func canonicalise(name, field string, layer *geo.Layer) error {
	for i := range layer.Features {
		f := &layer.Features[i]
		switch name {
		case Signatures:
			v, ok := f.StringProp(field)
			if !ok {
				return eris.Errorf("layers: signature feature %d has no %q attribute", i, field)
			}
			if _, known := signature.Code(v); !known {
				return eris.Errorf("layers: signature feature %d has unknown type %q", i, v)
			}
			f.Properties[PropSignature] = v
		case Regions:
			v, ok := f.StringProp(field)
			if !ok {
				return eris.Errorf("layers: region feature %d has no %q attribute", i, field)
			}
			f.Properties[PropName] = v
		case Deprivation:
			v, ok := f.FloatProp(field)
			if !ok {
				return eris.Errorf("layers: deprivation feature %d has no numeric %q attribute", i, field)
			}
			f.Properties[PropScore] = v
		case Geography:
			v, ok := f.StringProp(field)
			if !ok {
				return eris.Errorf("layers: geography feature %d has no %q attribute", i, field)
			}
			f.Properties[PropCode] = v
		}
	}
	return nil
}

// readPenPortraits reads a JSON or YAML object of signature name to text.
func readPenPortraits(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "layers: read pen portraits")
	}

	m := map[string]string{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrap(err, "layers: decode pen portraits yaml")
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrap(err, "layers: decode pen portraits json")
		}
	}

	for name := range m {
		if _, ok := signature.Code(name); !ok {
			zap.L().Warn("layers: pen portrait for unknown signature", zap.String("signature", name))
		}
	}
	return m, nil
}
