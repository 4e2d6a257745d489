package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/docreader/internal/chunking"
	"github.com/joseph-ayodele/docreader/internal/common"
	"github.com/joseph-ayodele/docreader/internal/ocr"
)

// Options are the per-run knobs. They are stored verbatim on the job.
type Options struct {
	OCRLanguage        string `json:"ocr_language"`
	EnableChunking     bool   `json:"enable_chunking"`
	ChunkSize          int    `json:"chunk_size"`
	ChunkOverlap       int    `json:"chunk_overlap"`
	PreserveParagraphs bool   `json:"preserve_paragraphs"`
	PreserveSentences  bool   `json:"preserve_sentences"`
}

func DefaultOptions() Options {
	return Options{
		OCRLanguage:        ocr.DefaultLanguage,
		EnableChunking:     true,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		PreserveParagraphs: true,
		PreserveSentences:  true,
	}
}

// OptionsFromConfig builds the service-wide defaults from configuration.
func OptionsFromConfig(p common.PipelineConfig, language string) Options {
	o := Options{
		OCRLanguage:        language,
		EnableChunking:     p.EnableChunking,
		ChunkSize:          p.ChunkSize,
		ChunkOverlap:       p.ChunkOverlap,
		PreserveParagraphs: p.PreserveParagraphs,
		PreserveSentences:  p.PreserveSentences,
	}
	if o.OCRLanguage == "" {
		o.OCRLanguage = ocr.DefaultLanguage
	}
	return o
}

func (o Options) Chunking() chunking.Options {
	return chunking.Options{
		ChunkSize:          o.ChunkSize,
		Overlap:            o.ChunkOverlap,
		PreserveParagraphs: o.PreserveParagraphs,
		PreserveSentences:  o.PreserveSentences,
	}
}

// Validate rejects options a run could not honor.
func (o Options) Validate() error {
	v := common.NewValidator().
		Field("ocr_language", o.OCRLanguage, common.Required, common.LanguageCode)
	if v.HasErrors() {
		return common.InvalidConfiguration(v.ErrorMessage())
	}
	if o.EnableChunking {
		return o.Chunking().Validate()
	}
	return nil
}

const optionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "ocr_language":        {"type": "string", "minLength": 3},
    "enable_chunking":     {"type": "boolean"},
    "chunk_size":          {"type": "integer", "minimum": 1},
    "chunk_overlap":       {"type": "integer", "minimum": 0},
    "preserve_paragraphs": {"type": "boolean"},
    "preserve_sentences":  {"type": "boolean"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func optionsValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("options.json", bytes.NewReader([]byte(optionsSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("options.json")
	})
	return compiledSchema, schemaErr
}

// DecodeOptions overlays a partial JSON object onto base. Unknown keys and
// wrongly typed values are rejected before anything is applied.
func DecodeOptions(raw []byte, base Options) (Options, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return base, base.Validate()
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return base, common.InvalidConfiguration("options are not valid JSON: " + err.Error())
	}
	schema, err := optionsValidator()
	if err != nil {
		return base, fmt.Errorf("compile options schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return base, common.InvalidConfiguration("options do not match schema: " + err.Error())
	}
	out := base
	if err := json.Unmarshal(raw, &out); err != nil {
		return base, common.InvalidConfiguration(err.Error())
	}
	return out, out.Validate()
}
