package apps

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	jsonyaml "github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"
)

// The declaration format, enforced before decoding so that a typo'd
// field name is an error the operator sees, not silently-ignored
// YAML.
const applicationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "source"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "source": {
      "type": "object",
      "required": ["repoURL", "path"],
      "additionalProperties": false,
      "properties": {
        "repoURL": {"type": "string", "minLength": 1},
        "ref": {"type": "string"},
        "path": {"type": "string", "minLength": 1}
      }
    },
    "destination": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "server": {"type": "string"},
        "namespace": {"type": "string"}
      }
    },
    "syncPolicy": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "automated": {"type": "boolean"},
        "prune": {"type": "boolean"},
        "selfHeal": {"type": "boolean"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(applicationSchema)

// LoadFromDirectory reads every .yaml/.yml file under dir and parses
// the application declarations therein. Each YAML document is one
// application; names must be unique across all files.
func LoadFromDirectory(dir string) ([]Application, error) {
	var apps []Application
	seen := map[string]string{}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || (filepath.Ext(path) != ".yaml" && filepath.Ext(path) != ".yml") {
			return nil
		}
		fileBytes, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		parsed, err := Parse(fileBytes)
		if err != nil {
			return errors.Wrapf(err, "in %s", path)
		}
		for _, app := range parsed {
			if prev, ok := seen[app.Name]; ok {
				return fmt.Errorf("application %q declared twice (in %s and %s)", app.Name, prev, path)
			}
			seen[app.Name] = path
			apps = append(apps, app)
		}
		return nil
	})
	return apps, err
}

// Parse decodes (possibly multi-document) YAML into validated
// application declarations.
func Parse(doc []byte) ([]Application, error) {
	var apps []Application
	decoder := yaml.NewDecoder(bytes.NewReader(doc))
	for {
		var raw interface{}
		err := decoder.Decode(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		rawYAML, err := yaml.Marshal(raw)
		if err != nil {
			return nil, err
		}
		asJSON, err := jsonyaml.YAMLToJSON(rawYAML)
		if err != nil {
			return nil, err
		}
		if err := validateSchema(asJSON); err != nil {
			return nil, err
		}
		var app Application
		if err := jsonyaml.Unmarshal(rawYAML, &app); err != nil {
			return nil, err
		}
		if err := app.Validate(); err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func validateSchema(doc []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.Wrap(err, "validating application declaration")
	}
	if result.Valid() {
		return nil
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid application declaration: %s", strings.Join(problems, "; "))
}
