// Package directory loads the resource directory supplied by the admin
// collaborator: the list of reservable resources and their capacities.
//
// Supported formats, chosen by file extension:
//
//	.cue         validated against an embedded CUE schema
//	.yaml, .yml  decoded with unknown fields rejected
//	.json        decoded as YAML (JSON is a subset)
//
// Every format has the same shape:
//
//	resources:
//	  - id: bus-1
//	    name: North Line
//	    capacity: 40
package directory

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/boarding/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// LoadError describes why a directory file was rejected.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("directory %s: %s", e.Path, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load reads and validates the directory at path.
func Load(path string) ([]model.Resource, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "read failed", Err: err}
	}

	var resources []model.Resource
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		resources, err = decodeCUE(path, src)
	case ".yaml", ".yml", ".json":
		resources, err = decodeYAML(src)
	default:
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("unsupported extension %q", ext)}
	}
	if err != nil {
		return nil, &LoadError{Path: path, Message: "invalid content", Err: err}
	}

	if err := check(resources); err != nil {
		return nil, &LoadError{Path: path, Message: "invalid resource", Err: err}
	}
	return resources, nil
}

// cueResource mirrors #Resource. cue.Value.Decode uses json tags.
type cueResource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

func decodeCUE(path string, src []byte) ([]model.Resource, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(path))
	if err := data.Err(); err != nil {
		return nil, err
	}

	v := schema.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}

	var entries []cueResource
	if err := v.LookupPath(cue.ParsePath("resources")).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode resources: %w", err)
	}

	out := make([]model.Resource, len(entries))
	for i, e := range entries {
		out[i] = model.Resource{ResourceID: e.ID, Name: e.Name, Capacity: e.Capacity}
	}
	return out, nil
}

type yamlFile struct {
	Resources []model.Resource `yaml:"resources"`
}

func decodeYAML(src []byte) ([]model.Resource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var f yamlFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return []model.Resource{}, nil
		}
		return nil, err
	}
	return f.Resources, nil
}

// check normalizes ids in place and rejects negative capacities and
// duplicate ids.
func check(resources []model.Resource) error {
	seen := make(map[string]int, len(resources))
	for i := range resources {
		r := &resources[i]
		id, err := model.NormalizeID(r.ResourceID)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		r.ResourceID = id
		if r.Capacity < 0 {
			return fmt.Errorf("resource %s: negative capacity %d", id, r.Capacity)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("resource %s: duplicate id (entries %d and %d)", id, prev, i)
		}
		seen[id] = i
	}
	return nil
}
