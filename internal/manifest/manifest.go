// Package manifest loads mod manifests, the rule files they reference and the
// interface injections they declare, from plain files, directories and mod
// archives.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"class-widener/internal/textutil"
)

// DefaultName is the manifest file name looked up in directories and at the
// root of archives.
const DefaultName = "mod.json"

// Manifest is the subset of a mod manifest the widener reads. Unknown keys
// are ignored.
type Manifest struct {
	ID string `json:"id,omitempty" validate:"omitempty,max=64" jsonschema:"description=Mod identifier used in diagnostics"`
	// AccessWidener is a path to a rule file, relative to the manifest's
	// directory or to the archive root.
	AccessWidener string `json:"accessWidener,omitempty" validate:"omitempty,max=4096" jsonschema:"description=Rule file path relative to the manifest"`
	// InjectedInterfaces maps a dotted target class name to the dotted names
	// of the interfaces it should implement.
	InjectedInterfaces map[string][]string `json:"injectedInterfaces,omitempty" validate:"omitempty,dive,keys,classname,endkeys,min=1,dive,classname" jsonschema:"description=Target class to injected interfaces (dotted names)"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("classname", func(fl validator.FieldLevel) bool {
		return IsDottedName(fl.Field().String())
	})
	return v
}

// IsDottedName reports whether s looks like a binary class name in dotted
// form: non-empty segments separated by '.', with no characters that are
// illegal in class names.
func IsDottedName(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" || strings.ContainsAny(seg, "/;[<> \t\r\n") {
			return false
		}
	}
	return true
}

// InternalName converts a dotted class name to its internal form.
func InternalName(dotted string) string {
	return strings.ReplaceAll(dotted, ".", "/")
}

// Decode parses and validates a manifest document. path labels errors.
func Decode(data []byte, path string) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(textutil.StripBOM(data), &m); err != nil {
		return Manifest{}, &Error{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, &Error{Path: path, Err: err}
	}
	return m, nil
}

// Validate checks field constraints and class-name syntax.
func (m Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}

// Schema returns the JSON schema of the manifest subset.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&Manifest{})
	s.Title = "class-widener manifest"
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}

// Error reports a manifest that could not be read, decoded or validated.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("manifest %s: %v", e.Path, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
