package predictor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// formatVersion is bumped whenever envelope changes incompatibly.
const formatVersion = 1

var magic = []byte("PFM1")

type envelope struct {
	Format       int       `json:"format"`
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Config       Config    `json:"config"`
	Columns      []string  `json:"columns"`
	Targets      []string  `json:"targets"`
	ResidualStd  []float64 `json:"residual_std"`
	TrainMetrics Metrics   `json:"train_metrics"`
	TrainedAt    time.Time `json:"trained_at"`
	Forest       *forest   `json:"forest"`
}

// Save writes the full model state, including the feature ordering, to w as a
// zstd-compressed JSON envelope.
func (m *Model) Save(w io.Writer) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	env := envelope{
		Format:       formatVersion,
		ID:           m.id,
		Kind:         m.kind,
		Config:       m.config,
		Columns:      m.columns,
		Targets:      m.targets,
		ResidualStd:  m.residualStd,
		TrainMetrics: m.trainMetrics,
		TrainedAt:    m.trainedAt,
		Forest:       m.forest,
	}
	if err := json.NewEncoder(enc).Encode(&env); err != nil {
		enc.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush compressor: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header, magic) {
		return nil, finance.InvalidParameter("model header", string(header), "not a saved model")
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("create decompressor: %w", err)
	}
	defer dec.Close()

	var env envelope
	if err := json.NewDecoder(dec).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if env.Format != formatVersion {
		return nil, finance.InvalidParameter("model format", env.Format, fmt.Sprintf("expected %d", formatVersion))
	}
	if env.Forest == nil || len(env.Forest.Trees) == 0 {
		return nil, finance.InvalidParameter("model", env.ID, "contains no trees")
	}
	if len(env.ResidualStd) != len(env.Targets) {
		return nil, finance.InvalidParameter("model", env.ID, "residual statistics do not match targets")
	}
	return &Model{
		id:           env.ID,
		kind:         env.Kind,
		config:       env.Config,
		columns:      env.Columns,
		targets:      env.Targets,
		forest:       env.Forest,
		residualStd:  env.ResidualStd,
		trainMetrics: env.TrainMetrics,
		trainedAt:    env.TrainedAt,
	}, nil
}
