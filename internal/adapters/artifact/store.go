// Package artifact persists model artifacts, feature manifests and validation
// predictions. Every file is published atomically: written to a temporary file
// in the target directory and renamed into place once complete.
package artifact

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/okian/slarisk/internal/domain/inference"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	modelSchemaURL    = "mem://slarisk/model.schema.json"
	manifestSchemaURL = "mem://slarisk/manifest.schema.json"
)

// Store reads and writes a model/manifest pair at fixed paths.
type Store struct {
	modelPath    string
	manifestPath string
	model        *jsonschema.Schema
	manifest     *jsonschema.Schema
}

// NewStore compiles the document schemas and returns a Store for the given paths.
func NewStore(modelPath, manifestPath string) (*Store, error) {
	if modelPath == "" || manifestPath == "" {
		return nil, fmt.Errorf("%w: model and manifest paths are required", ErrInvalidPath)
	}
	if filepath.Clean(modelPath) == filepath.Clean(manifestPath) {
		return nil, fmt.Errorf("%w: model and manifest share %s", ErrInvalidPath, modelPath)
	}
	model, err := compileSchema(modelSchemaURL, "schemas/model.schema.json")
	if err != nil {
		return nil, err
	}
	manifest, err := compileSchema(manifestSchemaURL, "schemas/manifest.schema.json")
	if err != nil {
		return nil, err
	}
	return &Store{modelPath: modelPath, manifestPath: manifestPath, model: model, manifest: manifest}, nil
}

func compileSchema(url, name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Save writes the artifact and its manifest. Both documents are staged before either
// is published; readers see the old pair, a new file next to an old one (rejected on
// load by model id), or the new pair.
func (s *Store) Save(ctx context.Context, a inference.Artifact, m inference.Manifest) error {
	if a.ModelID != m.ModelID {
		return fmt.Errorf("%w: artifact %q manifest %q", inference.ErrManifestMismatch, a.ModelID, m.ModelID)
	}
	if a.Encoders == nil {
		a.Encoders = map[string][]string{}
	}
	modelDoc, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	manifestDoc, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := validateDoc(s.model, modelDoc); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	if err := validateDoc(s.manifest, manifestDoc); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	modelTmp, err := stage(s.modelPath, modelDoc)
	if err != nil {
		return err
	}
	manifestTmp, err := stage(s.manifestPath, manifestDoc)
	if err != nil {
		_ = os.Remove(modelTmp)
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(modelTmp)
		_ = os.Remove(manifestTmp)
		return err
	}
	if err := os.Rename(modelTmp, s.modelPath); err != nil {
		_ = os.Remove(modelTmp)
		_ = os.Remove(manifestTmp)
		return fmt.Errorf("publish artifact: %w", err)
	}
	if err := os.Rename(manifestTmp, s.manifestPath); err != nil {
		_ = os.Remove(manifestTmp)
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// Load reads both documents, validates them against their schemas and checks they belong together.
// It returns inference.ErrArtifactMissing only when neither file exists; a pair
// with one half absent is an inference.ErrManifestMismatch.
func (s *Store) Load(_ context.Context) (inference.Artifact, inference.Manifest, error) {
	var (
		a inference.Artifact
		m inference.Manifest
	)
	modelErr := s.read(s.modelPath, s.model, &a)
	manifestErr := s.read(s.manifestPath, s.manifest, &m)
	modelMissing := errors.Is(modelErr, inference.ErrArtifactMissing)
	manifestMissing := errors.Is(manifestErr, inference.ErrArtifactMissing)
	switch {
	case modelMissing && manifestMissing:
		return a, m, fmt.Errorf("load artifact: %w", modelErr)
	case modelMissing:
		return a, m, fmt.Errorf("%w: manifest %s has no model at %s",
			inference.ErrManifestMismatch, s.manifestPath, s.modelPath)
	case manifestMissing:
		return a, m, fmt.Errorf("%w: model %s has no manifest at %s",
			inference.ErrManifestMismatch, s.modelPath, s.manifestPath)
	case modelErr != nil:
		return a, m, fmt.Errorf("load artifact: %w", modelErr)
	case manifestErr != nil:
		return a, m, fmt.Errorf("load manifest: %w", manifestErr)
	}
	if a.ModelID != m.ModelID {
		return a, m, fmt.Errorf("%w: artifact %q manifest %q", inference.ErrManifestMismatch, a.ModelID, m.ModelID)
	}
	if a.FeatureCount != len(m.Features) {
		return a, m, fmt.Errorf("%w: artifact declares %d features, manifest lists %d",
			inference.ErrManifestMismatch, a.FeatureCount, len(m.Features))
	}
	return a, m, nil
}

// LoadEngine loads the pair and builds an inference engine from it.
func (s *Store) LoadEngine(ctx context.Context) (*inference.Engine, error) {
	a, m, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return inference.NewEngine(a, m)
}

func (s *Store) read(path string, schema *jsonschema.Schema, into any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", inference.ErrArtifactMissing, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := validateDoc(schema, raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDocument, path, err)
	}
	return nil
}

func validateDoc(schema *jsonschema.Schema, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// stage writes data to a synced temporary file next to path and returns its name.
func stage(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return name, nil
}

// publish writes data to path atomically.
func publish(path string, data []byte) error {
	tmp, err := stage(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
