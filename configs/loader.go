package configs

import (
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Loader reads cue files lazily. Files listed first take precedence.
type Loader struct {
	getRoots func() ([]root, error)
}

func NewLoader(filePaths []string, schemaSrc string) Loader {
	return Loader{

		getRoots: sync.OnceValues(func() (ret []root, err error) {
			ctx := cuecontext.New()

			var schema cue.Value
			if schemaSrc != "" {
				schema = ctx.CompileString(
					"close({"+schemaSrc+"})",
					cue.Filename("schema.cue"),
				)
				if err := schema.Err(); err != nil {
					return nil, fmt.Errorf("schema: %w", err)
				}
			}

			for _, filePath := range filePaths {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return nil, err
				}

				value := ctx.CompileBytes(
					content,
					cue.Filename(filePath),
				)
				if err = value.Err(); err != nil {
					return nil, err
				}

				if schema.Exists() {
					if err := schema.Unify(value).Validate(); err != nil {
						return nil, fmt.Errorf("%s: %w", filePath, err)
					}
				}

				ret = append(ret, root{
					value: value,
					path:  filePath,
				})
			}

			return
		}),
	}
}

type root struct {
	value cue.Value
	path  string
}

func (l Loader) lookup(path string) (value cue.Value, file string, err error) {
	roots, err := l.getRoots()
	if err != nil {
		return
	}
	cuePath := cue.ParsePath(path)
	for _, r := range roots {
		value = r.value.LookupPath(cuePath)
		if value.Err() == nil && value.Exists() {
			return value, r.path, nil
		}
	}
	return value, "", ErrValueNotFound
}

// AssignFirst decodes the first value found at path into target.
func (l Loader) AssignFirst(path string, target any) error {
	value, file, err := l.lookup(path)
	if err != nil {
		return err
	}
	if err := value.Decode(target); err != nil {
		return fmt.Errorf("%s: %s: %w", file, path, err)
	}
	return nil
}

// Source returns the file supplying the value at path.
func (l Loader) Source(path string) (string, error) {
	_, file, err := l.lookup(path)
	return file, err
}
