package resource

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	jsonyaml "github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Load takes paths to directories or files, and parses every YAML
// document found therein into a Manifest. Manifests are keyed by
// their resource ID; a duplicate definition is an error, since the
// differ could not otherwise pair each resource with exactly one
// manifest.
func Load(base string, paths []string) (map[string]Manifest, error) {
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, fmt.Errorf("path %q not found", base)
	}
	objs := map[string]Manifest{}
	for _, root := range paths {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return errors.Wrapf(err, "walking %q for yamels", path)
			}
			if info.IsDir() || (filepath.Ext(path) != ".yaml" && filepath.Ext(path) != ".yml") {
				return nil
			}
			fileBytes, err := ioutil.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "unable to read file at %q", path)
			}
			source, err := filepath.Rel(base, path)
			if err != nil {
				return errors.Wrapf(err, "path to scan %q is not under base %q", path, base)
			}
			docsInFile, err := ParseMultidoc(fileBytes, source)
			if err != nil {
				return err
			}
			for id, obj := range docsInFile {
				if alreadyDefined, ok := objs[id]; ok {
					return fmt.Errorf(`duplicate definition of '%s' (in %s and %s)`, id, alreadyDefined.Source(), source)
				}
				objs[id] = obj
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// ParseMultidoc parses a (possibly multi-document) YAML stream into
// manifests keyed by resource ID.
func ParseMultidoc(multidoc []byte, source string) (map[string]Manifest, error) {
	objs := map[string]Manifest{}
	decoder := yaml.NewDecoder(bytes.NewReader(multidoc))
	for {
		// Decode generically and encode again, to extract each raw
		// document from the stream.
		var val interface{}
		err := decoder.Decode(&val)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parsing YAML doc from %q", source)
		}
		if val == nil { // empty document, e.g., a stray `---`
			continue
		}
		docBytes, err := yaml.Marshal(val)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing YAML doc from %q", source)
		}
		obj, err := unmarshalObject(docBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing YAML doc from %q", source)
		}
		// Lists are treated specially, since it's the contained
		// resources we are after.
		if obj.GetKind() == "List" {
			items, ok, _ := unstructured.NestedSlice(obj.Object, "items")
			if !ok {
				continue
			}
			for _, item := range items {
				content, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("malformed list item in %s", source)
				}
				itemObj := &unstructured.Unstructured{Object: content}
				if err := checkComplete(itemObj); err != nil {
					return nil, errors.Wrapf(err, "in %s", source)
				}
				itemBytes, err := jsonyaml.Marshal(content)
				if err != nil {
					return nil, errors.Wrapf(err, "in %s", source)
				}
				if err := record(objs, NewManifest(itemObj, source, itemBytes), source); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := checkComplete(obj); err != nil {
			return nil, errors.Wrapf(err, "in %s", source)
		}
		if err := record(objs, NewManifest(obj, source, docBytes), source); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

func record(objs map[string]Manifest, m Manifest, source string) error {
	id := m.ResourceID().String()
	if _, ok := objs[id]; ok {
		return fmt.Errorf(`duplicate definition of '%s' (in %s)`, id, source)
	}
	objs[id] = m
	return nil
}

// unmarshalObject goes via JSON so that the resulting map has string
// keys throughout, which is what unstructured.Unstructured requires.
func unmarshalObject(doc []byte) (*unstructured.Unstructured, error) {
	var content map[string]interface{}
	if err := jsonyaml.Unmarshal(doc, &content); err != nil {
		return nil, err
	}
	return &unstructured.Unstructured{Object: content}, nil
}

func checkComplete(obj *unstructured.Unstructured) error {
	if obj.GetAPIVersion() == "" || obj.GetKind() == "" || obj.GetName() == "" {
		return fmt.Errorf("document is not a resource definition (requires apiVersion, kind and metadata.name)")
	}
	return nil
}
