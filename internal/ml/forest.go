package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"firewatch/internal/errors"
	"firewatch/internal/models"
	"github.com/rs/zerolog"
)

// Model is a random forest exported to JSON together with its label encoder
type Model struct {
	Classes      []string `json:"classes"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Trees        []Tree   `json:"trees"`
}

// Tree stores nodes in a flat array; node 0 is the root. A node whose
// children are both non-positive is a leaf.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"` // per-class counts at a leaf
}

func (n Node) leaf() bool {
	return n.Left <= 0 && n.Right <= 0
}

// ForestClassifier classifies with a loaded Model. It is immutable after
// construction.
type ForestClassifier struct {
	model Model
}

// LoadForest reads and validates a model artifact
func LoadForest(path string, log zerolog.Logger) (*ForestClassifier, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrModelLoad, err)
	}

	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, errFactory.Wrap(errors.ErrModelLoad, err)
	}

	fc, err := NewForest(model)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("trees", len(model.Trees)).
		Strs("classes", model.Classes).
		Msg("Loaded classification model")

	return fc, nil
}

// NewForest validates model and wraps it as a Classifier
func NewForest(model Model) (*ForestClassifier, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &ForestClassifier{model: model}, nil
}

// Validate checks that every tree is walkable and every leaf matches the
// class count
func (m Model) Validate() error {
	errFactory := errors.New()

	if len(m.Classes) == 0 {
		return errFactory.WithData(errors.ErrModelInvalid, "no classes")
	}
	if len(m.Trees) == 0 {
		return errFactory.WithData(errors.ErrModelInvalid, "no trees")
	}

	for t, tree := range m.Trees {
		if len(tree.Nodes) == 0 {
			return errFactory.WithData(errors.ErrModelInvalid, fmt.Sprintf("tree %d has no nodes", t))
		}
		for i, n := range tree.Nodes {
			if n.leaf() {
				if len(n.Value) != len(m.Classes) {
					return errFactory.WithData(errors.ErrModelInvalid,
						fmt.Sprintf("tree %d node %d: leaf has %d values for %d classes", t, i, len(n.Value), len(m.Classes)))
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(FeatureNames) {
				return errFactory.WithData(errors.ErrModelInvalid,
					fmt.Sprintf("tree %d node %d: feature %d out of range", t, i, n.Feature))
			}
			// children always sit after their parent, so traversal terminates
			for _, child := range []int{n.Left, n.Right} {
				if child <= i || child >= len(tree.Nodes) {
					return errFactory.WithData(errors.ErrModelInvalid,
						fmt.Sprintf("tree %d node %d: child %d out of range", t, i, child))
				}
			}
		}
	}

	return nil
}

// Classify returns the uppercased class name with the highest mean
// probability across trees. Ties resolve to the lowest class index.
func (c *ForestClassifier) Classify(f Features) (string, error) {
	probs := make([]float64, len(c.model.Classes))

	for _, tree := range c.model.Trees {
		leaf := tree.Nodes[0]
		for !leaf.leaf() {
			if f[leaf.Feature] <= leaf.Threshold {
				leaf = tree.Nodes[leaf.Left]
			} else {
				leaf = tree.Nodes[leaf.Right]
			}
		}

		total := 0.0
		for _, v := range leaf.Value {
			total += v
		}
		if total <= 0 {
			continue
		}
		for k, v := range leaf.Value {
			probs[k] += v / total
		}
	}

	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}

	label := models.NormalizeStatus(c.model.Classes[best])
	if label == "" {
		return "", errors.New().WithData(errors.ErrClassification, fmt.Sprintf("class %d has an empty name", best))
	}
	return label, nil
}

// Classes returns the decoded class names in encoder order
func (c *ForestClassifier) Classes() []string {
	return append([]string(nil), c.model.Classes...)
}

// SampleModel returns a small hand-built forest over the aman / waspada /
// bahaya labels used by the field devices.
func SampleModel() Model {
	aman := []float64{1, 0, 0}
	bahaya := []float64{0, 1, 0}
	waspada := []float64{0, 0, 1}

	return Model{
		Classes:      []string{"aman", "bahaya", "waspada"},
		FeatureNames: FeatureNames[:],
		Trees: []Tree{
			{Nodes: []Node{
				{Feature: 3, Threshold: 0.5, Left: 1, Right: 6},
				{Feature: 2, Threshold: 250, Left: 2, Right: 3},
				{Left: -1, Right: -1, Value: aman},
				{Feature: 2, Threshold: 400, Left: 4, Right: 5},
				{Left: -1, Right: -1, Value: waspada},
				{Left: -1, Right: -1, Value: bahaya},
				{Left: -1, Right: -1, Value: bahaya},
			}},
			{Nodes: []Node{
				{Feature: 0, Threshold: 45, Left: 1, Right: 4},
				{Feature: 2, Threshold: 300, Left: 2, Right: 3},
				{Left: -1, Right: -1, Value: aman},
				{Left: -1, Right: -1, Value: waspada},
				{Feature: 3, Threshold: 0.5, Left: 5, Right: 6},
				{Left: -1, Right: -1, Value: waspada},
				{Left: -1, Right: -1, Value: bahaya},
			}},
			{Nodes: []Node{
				{Feature: 2, Threshold: 400, Left: 1, Right: 4},
				{Feature: 0, Threshold: 50, Left: 2, Right: 3},
				{Left: -1, Right: -1, Value: aman},
				{Left: -1, Right: -1, Value: waspada},
				{Left: -1, Right: -1, Value: bahaya},
			}},
		},
	}
}

// CreateSampleModel writes SampleModel to path for demonstration setups
// that ship without a trained artifact
func CreateSampleModel(path string, log zerolog.Logger) error {
	errFactory := errors.New()

	data, err := json.MarshalIndent(SampleModel(), "", "  ")
	if err != nil {
		return errFactory.Wrap(errors.ErrModelLoad, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrModelLoad, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errFactory.Wrap(errors.ErrModelLoad, err)
	}

	log.Info().Str("path", path).Msg("Created sample model")
	return nil
}
