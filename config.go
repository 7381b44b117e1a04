package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	toml "github.com/pelletier/go-toml/v2"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"
)

// Config holds the named settings of the configuration document.
// Unknown keys are rejected when decoding, missing keys take the defaults
// applied by Default.
type Config struct {
	ContentDirectory   string `json:"content_directory,omitempty" toml:"content_directory,omitempty" jsonschema:"default=content" jsonschema_description:"Directory holding one sub-directory per category."`
	Theme              string `json:"theme,omitempty" toml:"theme,omitempty" jsonschema:"default=basic" jsonschema_description:"Name of a built-in theme or path to a theme directory."`
	OutputDirectory    string `json:"output_directory,omitempty" toml:"output_directory,omitempty" jsonschema:"default=output" jsonschema_description:"Directory the site is written to. Its contents are deleted on every run."`
	DefaultAuthor      string `json:"default_author,omitempty" toml:"default_author,omitempty" jsonschema:"default=Joe Bloggs"`
	WebsiteName        string `json:"website_name,omitempty" toml:"website_name,omitempty" jsonschema:"default=My Blog"`
	WebsiteDescription string `json:"website_description,omitempty" toml:"website_description,omitempty" jsonschema:"default=Website"`
	Copyright          string `json:"copyright,omitempty" toml:"copyright,omitempty" jsonschema_description:"Defaults to the current year and the default author."`
	DateFormat         string `json:"date_format,omitempty" toml:"date_format,omitempty" jsonschema:"default=%Y/%m/%d" jsonschema_description:"strftime layout of the date metadata of posts."`

	CategoryPagePostLimit int `json:"category_page_post_limit,omitempty" toml:"category_page_post_limit,omitempty" jsonschema:"default=10,minimum=1"`
	IndexPagePostLimit    int `json:"index_page_post_limit,omitempty" toml:"index_page_post_limit,omitempty" jsonschema:"default=5,minimum=1"`
}

// Default fills every unset setting except the copyright,
// which depends on the clock and is completed by NewBlog.
func (c *Config) Default() {
	if c.ContentDirectory == "" {
		c.ContentDirectory = "content"
	}
	if c.Theme == "" {
		c.Theme = "basic"
	}
	if c.OutputDirectory == "" {
		c.OutputDirectory = "output"
	}
	if c.DefaultAuthor == "" {
		c.DefaultAuthor = "Joe Bloggs"
	}
	if c.WebsiteName == "" {
		c.WebsiteName = "My Blog"
	}
	if c.WebsiteDescription == "" {
		c.WebsiteDescription = "Website"
	}
	if c.DateFormat == "" {
		c.DateFormat = "%Y/%m/%d"
	}
	if c.CategoryPagePostLimit == 0 {
		c.CategoryPagePostLimit = 10
	}
	if c.IndexPagePostLimit == 0 {
		c.IndexPagePostLimit = 5
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs field.ErrorList

	if c.CategoryPagePostLimit <= 0 {
		errs = append(errs, field.Invalid(
			field.NewPath("category_page_post_limit"), c.CategoryPagePostLimit, "must be greater than zero"))
	}
	if c.IndexPagePostLimit <= 0 {
		errs = append(errs, field.Invalid(
			field.NewPath("index_page_post_limit"), c.IndexPagePostLimit, "must be greater than zero"))
	}
	// The output directory is emptied on every run.
	contains, err := containsPath(c.OutputDirectory, c.ContentDirectory)
	if err != nil {
		errs = append(errs, field.InternalError(field.NewPath("output_directory"), err))
	} else if contains {
		errs = append(errs, field.Invalid(
			field.NewPath("output_directory"), c.OutputDirectory, "must not be or contain content_directory"))
	}

	return errs.ToAggregate()
}

// containsPath reports whether dir is path or one of its parents.
func containsPath(dir, path string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		// Different volumes.
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// LoadConfig reads and decodes the configuration document at path.
// The decoder is picked by file extension, JSON being the fallback.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, &cfg)
	case ".toml":
		err = decodeTOML(data, &cfg)
	default:
		err = decodeJSON(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return cfg, nil
}

var errNotAnObject = errors.New("top-level value must be an object")

func decodeJSON(data []byte, cfg *Config) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		// Catches null, which would otherwise decode into an empty config.
		if err := json.Unmarshal(trimmed, new(interface{})); err != nil {
			return err
		}
		return errNotAnObject
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if err := dec.Decode(new(interface{})); err != io.EOF {
		return errors.New("unexpected data after top-level object")
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Schema returns the JSON Schema describing the configuration document.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "simple-blog-generator configuration"
	return json.MarshalIndent(s, "", "  ")
}
