package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"rentradar-backend/internal/features"
)

const (
	modelFileName    = "model.onnx"
	metadataFileName = "metadata.json"
)

// modelMetadata describes the exported model: the feature order it was
// trained with and the baseline row used for attribution.
type modelMetadata struct {
	FeatureNames []string  `json:"feature_names"`
	Baseline     []float32 `json:"baseline"`
	Target       string    `json:"target"`
	InputName    string    `json:"input_name"`
	OutputName   string    `json:"output_name"`
}

func loadMetadata(path string) (*modelMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var meta modelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}

	if meta.InputName == "" {
		meta.InputName = "features"
	}
	if meta.OutputName == "" {
		meta.OutputName = "predictions"
	}
	return &meta, nil
}

// validateMetadata rejects models whose feature contract diverges from the
// transformer's canonical order; a silent mismatch would produce garbage
// predictions.
func validateMetadata(meta *modelMetadata) error {
	expected := features.FeatureNames()
	if len(meta.FeatureNames) != len(expected) {
		return fmt.Errorf("model expects %d features, transformer produces %d", len(meta.FeatureNames), len(expected))
	}
	for i, name := range expected {
		if meta.FeatureNames[i] != name {
			return fmt.Errorf("feature order mismatch at index %d: model has %q, transformer has %q", i, meta.FeatureNames[i], name)
		}
	}
	if len(meta.Baseline) != len(expected) {
		return fmt.Errorf("baseline has %d values, expected %d", len(meta.Baseline), len(expected))
	}
	return nil
}

type OnnxRegressor struct {
	session *ort.DynamicAdvancedSession
	meta    *modelMetadata
}

// LoadOnnxRegressor opens model.onnx and metadata.json from modelDir. The
// ONNX runtime environment must already be initialized.
func LoadOnnxRegressor(modelDir string) (Regressor, error) {
	meta, err := loadMetadata(filepath.Join(modelDir, metadataFileName))
	if err != nil {
		return nil, err
	}
	if err := validateMetadata(meta); err != nil {
		return nil, fmt.Errorf("invalid model metadata: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, modelFileName),
		[]string{meta.InputName},
		[]string{meta.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &OnnxRegressor{session: session, meta: meta}, nil
}

func (m *OnnxRegressor) Predict(rows [][]float32) ([]float32, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	n := m.NumFeatures()
	flat := make([]float32, 0, len(rows)*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), n)
		}
		flat = append(flat, row...)
	}

	inT, err := ort.NewTensor(ort.NewShape(int64(len(rows)), int64(n)), flat)
	if err != nil {
		return nil, err
	}
	defer inT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(len(rows)), 1))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	out := make([]float32, len(rows))
	copy(out, outT.GetData())
	return out, nil
}

func (m *OnnxRegressor) NumFeatures() int {
	return len(m.meta.FeatureNames)
}

func (m *OnnxRegressor) Baseline() []float32 {
	return m.meta.Baseline
}

func (m *OnnxRegressor) FeatureNames() []string {
	return m.meta.FeatureNames
}

func (m *OnnxRegressor) Release() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
