//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/contentdb/pkg/utils"
)

// Model input and output names of BERT-style sentence encoders.
var (
	modelInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	modelOutputs = []string{"output"}
)

// ONNXEmbedder fills the embedding columns of an entity from one of its text
// attributes by running a sentence encoder with ONNX Runtime. It requires CGO and the
// onnxruntime shared library. Runs are serialized because the session reuses one set
// of tensors; repeated texts are served by CachedEmbedder.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tensors    *sessionTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// sessionTensors are the bound inputs and output of a session: token ids, attention
// mask and token types of shape 1×maxTokens, and the 1×dimensions sentence vector.
type sessionTensors struct {
	inputs []*ort.Tensor[int64]
	output *ort.Tensor[float32]
}

func newSessionTensors(maxTokens, dimensions int) (*sessionTensors, error) {
	t := &sessionTensors{}
	for _, name := range modelInputs {
		in, err := ort.NewEmptyTensor[int64](ort.NewShape(1, int64(maxTokens)))
		if err != nil {
			_ = t.destroy()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		t.inputs = append(t.inputs, in)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = t.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	t.output = out
	return t, nil
}

func (t *sessionTensors) bind() (inputs, outputs []ort.ArbitraryTensor) {
	for _, in := range t.inputs {
		inputs = append(inputs, in)
	}
	return inputs, []ort.ArbitraryTensor{t.output}
}

// load copies the tokenized text into the input tensors, in modelInputs order.
func (t *sessionTensors) load(columns ...[]int64) {
	for i, col := range columns {
		copy(t.inputs[i].GetData(), col)
	}
}

func (t *sessionTensors) destroy() error {
	var errs []error
	for _, in := range t.inputs {
		errs = append(errs, in.Destroy())
	}
	t.inputs = nil
	if t.output != nil {
		errs = append(errs, t.output.Destroy())
		t.output = nil
	}
	return errors.Join(errs...)
}

// NewONNXEmbedder loads the encoder at modelPath producing vectors of dimensions
// values from at most maxTokens tokens. The runtime environment is initialized once
// per process.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	tokenizer := &SimpleTokenizer{}
	// The tokenizer falls back to its default length for tiny limits; size the
	// tensors from what it actually produces.
	ids, _, _ := tokenizer.Tokenize("", maxTokens)
	maxTokens = len(ids)

	tensors, err := newSessionTensors(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	inputs, outputs := tensors.bind()
	session, err := ort.NewAdvancedSession(modelPath, modelInputs, modelOutputs, inputs, outputs, nil)
	if err != nil {
		_ = tensors.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}

	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  tokenizer,
		dimensions: dimensions,
		maxTokens:  maxTokens,
	}, nil
}

// Embed encodes text into a unit-length vector of Dimensions() values.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("ONNX embedder is closed")
	}

	e.tensors.load(e.tokenizer.Tokenize(text, e.maxTokens))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	vec := make([]float32, e.dimensions)
	copy(vec, e.tensors.output.GetData())
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the number of embedding columns the encoder fills.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close releases the session and its tensors. Embed fails afterwards.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return errors.Join(err, e.tensors.destroy())
}
