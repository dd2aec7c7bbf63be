/*
PURPOSE:
  Loads the bilingual question corpus and flattens it into an ordered question list.

REQUIREMENTS:
  User-specified:
  - Corpus maps category name -> list of {id, text_en, text_hi}.
  - Questions keep file order: categories as written, items as written.

  Implementation-discovered:
  - Hand-edited corpora mix numeric and string ids; both are accepted and stored as strings.
  - Duplicate ids make records ambiguous and are rejected.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run, validate)
  - Uses: internal/assets (schema), internal/model

ERROR HANDLING:
  - Every failure wraps ErrCorpus. Callers treat it as fatal before any backend call.

IMPLEMENTATION RULES:
  - Validate against the embedded schema before building questions.
  - Decode through yaml.Node; a Go map would lose category order.

USAGE:
  qs, err := corpus.Load("questions.json")

SELF-HEALING INSTRUCTIONS:
  - If the corpus format gains fields, update assets/corpus.schema.json and item below.

RELATED FILES:
  - internal/assets/corpus.schema.json
  - internal/model/types.go

MAINTENANCE:
  - Keep JSON input working; YAML is accepted because JSON is a subset of it.
*/

package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/polyglot-runner/internal/assets"
	"github.com/daryltucker/polyglot-runner/internal/model"
)

// ErrCorpus wraps every corpus loading failure.
var ErrCorpus = errors.New("invalid corpus")

const rootKey = "categorized_questions"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

type item struct {
	ID     interface{} `yaml:"id"`
	TextEN string      `yaml:"text_en"`
	TextHI string      `yaml:"text_hi"`
}

// Load reads and parses the corpus at path.
func Load(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrCorpus, path, err)
	}
	qs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return qs, nil
}

// Parse validates a JSON or YAML corpus and flattens it in document order.
func Parse(data []byte) ([]model.Question, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpus, err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpus, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpus, err)
	}
	categories := mappingValue(doc.Content[0], rootKey)
	if categories == nil {
		return nil, fmt.Errorf("%w: missing %q", ErrCorpus, rootKey)
	}

	var questions []model.Question
	seen := map[string]string{}
	for i := 0; i+1 < len(categories.Content); i += 2 {
		category := categories.Content[i].Value
		for _, node := range categories.Content[i+1].Content {
			var it item
			if err := node.Decode(&it); err != nil {
				return nil, fmt.Errorf("%w: category %q line %d: %v", ErrCorpus, category, node.Line, err)
			}
			id := strings.TrimSpace(fmt.Sprint(it.ID))
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: duplicate id %q in %q (first seen in %q)", ErrCorpus, id, category, prev)
			}
			seen[id] = category
			questions = append(questions, model.Question{
				ID:       id,
				Category: category,
				TextEN:   it.TextEN,
				TextHI:   it.TextHI,
			})
		}
	}
	return questions, nil
}

// Categories counts questions per category, in first-seen order.
func Categories(questions []model.Question) ([]string, map[string]int) {
	var order []string
	counts := map[string]int{}
	for _, q := range questions {
		if _, ok := counts[q.Category]; !ok {
			order = append(order, q.Category)
		}
		counts[q.Category]++
	}
	return order, counts
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// validate checks raw against the embedded schema.
// The value goes through encoding/json first so the validator sees JSON types.
func validate(raw any) error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(assets.CorpusSchemaURL, strings.NewReader(assets.CorpusSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(assets.CorpusSchemaURL)
	})
	if schemaErr != nil {
		return fmt.Errorf("failed to compile corpus schema: %w", schemaErr)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("corpus is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return schema.Validate(v)
}
