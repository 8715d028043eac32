package lifecycle

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strings"

	"github.com/magiconair/properties"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

type Format string

const (
	FormatXml        Format = "xml"
	FormatProperties Format = "properties"
	FormatYaml       Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatXml, FormatProperties, FormatYaml:
		return f, nil
	default:
		return "", &flotillaerrors.ErrInvalidArgument{
			Name:    "format",
			Value:   s,
			Message: "supported formats are xml, properties and yaml",
		}
	}
}

type xmlConfiguration struct {
	XMLName    xml.Name      `xml:"configuration"`
	Properties []xmlProperty `xml:"property"`
}

type xmlProperty struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// RenderProperties writes props in format, keys in lexical order.
func RenderProperties(props map[string]string, format string) ([]byte, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	keys := maps.Keys(props)
	sort.Strings(keys)

	switch f {
	case FormatXml:
		conf := xmlConfiguration{Properties: make([]xmlProperty, 0, len(keys))}
		for _, key := range keys {
			conf.Properties = append(conf.Properties, xmlProperty{Name: key, Value: props[key]})
		}
		data, err := xml.MarshalIndent(conf, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "error rendering xml configuration")
		}
		return append([]byte(xml.Header), append(data, '\n')...), nil
	case FormatProperties:
		p := properties.NewProperties()
		for _, key := range keys {
			if _, _, err := p.Set(key, props[key]); err != nil {
				return nil, errors.Wrapf(err, "error setting property %s", key)
			}
		}
		var buf bytes.Buffer
		if _, err := p.Write(&buf, properties.UTF8); err != nil {
			return nil, errors.Wrap(err, "error rendering properties")
		}
		return buf.Bytes(), nil
	default:
		data, err := yaml.Marshal(props)
		if err != nil {
			return nil, errors.Wrap(err, "error rendering yaml configuration")
		}
		return data, nil
	}
}
