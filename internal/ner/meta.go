package ner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ModelMeta is what the recognizer needs from a token classification export:
// the label of every output class and whether the tokenizer lowercases.
type ModelMeta struct {
	Labels    []string
	LowerCase bool
}

// LoadModelMeta reads config.json (id2label) and, when present,
// tokenizer_config.json (do_lower_case) from dir.
func LoadModelMeta(dir string) (ModelMeta, error) {
	meta := ModelMeta{LowerCase: true}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return meta, fmt.Errorf("read model config: %w", err)
	}
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return meta, fmt.Errorf("decode model config: %w", err)
	}
	meta.Labels, err = labelsFromIDMap(cfg.ID2Label)
	if err != nil {
		return meta, err
	}

	data, err = os.ReadFile(filepath.Join(dir, "tokenizer_config.json"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return meta, fmt.Errorf("read tokenizer config: %w", err)
	default:
		var tc struct {
			DoLowerCase *bool `json:"do_lower_case"`
		}
		if err := json.Unmarshal(data, &tc); err != nil {
			return meta, fmt.Errorf("decode tokenizer config: %w", err)
		}
		if tc.DoLowerCase != nil {
			meta.LowerCase = *tc.DoLowerCase
		}
	}

	return meta, nil
}

func labelsFromIDMap(id2label map[string]string) ([]string, error) {
	if len(id2label) == 0 {
		return nil, fmt.Errorf("model config has no id2label")
	}
	ids := make([]int, 0, len(id2label))
	byID := make(map[int]string, len(id2label))
	for k, v := range id2label {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid label id %q", k)
		}
		ids = append(ids, id)
		byID[id] = v
	}
	sort.Ints(ids)
	if ids[0] < 0 {
		return nil, fmt.Errorf("invalid label id %d", ids[0])
	}
	labels := make([]string, ids[len(ids)-1]+1)
	for _, id := range ids {
		labels[id] = byID[id]
	}
	return labels, nil
}
