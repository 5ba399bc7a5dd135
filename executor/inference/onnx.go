// Package inference provides the ONNX Runtime backed evaluator used by
// the search. Requests from many concurrent searches are batched into
// single session runs to keep the accelerator busy.
package inference

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/game"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultBatchSize    = 128
	DefaultBatchTimeout = 1 * time.Millisecond
)

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// UseCUDA controls whether the CUDA execution provider is attempted.
	UseCUDA bool
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats summarizes batching behavior since startup.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient evaluates positions with an ONNX model. It satisfies the
// search's Evaluator interface; Evaluate blocks until its request has
// been through a batched session run.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	encoder      *convert.Encoder
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig

	totalBatches  atomic.Int64
	totalItems    atomic.Int64
	totalRunNanos atomic.Int64
	lastBatchSize atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string, encoder *convert.Encoder) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, encoder, OnnxClientConfig{
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultBatchTimeout,
	})
}

func NewOnnxClientWithConfig(modelPath string, encoder *convert.Encoder, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			candidates := []string{
				"libonnxruntime.so",
				"libonnxruntime.so.1",
			}
			for _, name := range candidates {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Workers provide the parallelism; keep ORT itself single threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				fmt.Println("Failed to append CUDA provider:", err)
			}
		} else {
			fmt.Println("Failed to create CUDA options:", err)
		}
	}

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		encoder:      encoder,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
	}

	go client.batchLoop()

	return client, nil
}

func (c *OnnxClient) Close() error {
	return c.session.Destroy()
}

// Stats returns batching counters.
func (c *OnnxClient) Stats() RuntimeStats {
	batches := c.totalBatches.Load()
	items := c.totalItems.Load()
	runNanos := c.totalRunNanos.Load()

	avgBatch := 0.0
	avgRunMs := 0.0
	if batches > 0 {
		avgBatch = float64(items) / float64(batches)
		avgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}
	return RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: c.lastBatchSize.Load(),
		QueueLen:      len(c.requestsChan),
		AvgBatchSize:  avgBatch,
		AvgRunMs:      avgRunMs,
	}
}

// Evaluate encodes the state, runs it through the model, and returns a
// normalized prior distribution over the action space plus a value in
// [-1, 1] for the player to move.
func (c *OnnxClient) Evaluate(state *game.GameState) ([]float32, float32, error) {
	planesPtr := c.encoder.StatePlanes(state)
	input := make([]float32, c.encoder.NumFloats())
	copy(input, *planesPtr)
	c.encoder.PutPlanes(planesPtr)

	respChan := make(chan inferenceResponse, 1)
	c.requestsChan <- inferenceRequest{input: input, respChan: respChan}

	resp := <-respChan
	if resp.err != nil {
		return nil, 0, resp.err
	}
	return softmax(resp.policy), clampValue(resp.value), nil
}

func (c *OnnxClient) batchLoop() {
	inputSize := c.encoder.NumFloats()
	batchInput := make([]float32, 0, c.cfg.BatchSize*inputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)

			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	started := time.Now()
	currentBatchSize := int64(len(requests))
	policySize := c.encoder.NumMoves()

	inputShape := []int64{currentBatchSize, convert.Channels, int64(c.encoder.Rows), int64(c.encoder.Cols)}
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, int64(policySize)))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	err = c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor})
	if err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		policy := make([]float32, policySize)
		copy(policy, policyData[i*policySize:(i+1)*policySize])

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i],
		}
	}

	c.totalBatches.Add(1)
	c.totalItems.Add(currentBatchSize)
	c.totalRunNanos.Add(time.Since(started).Nanoseconds())
	c.lastBatchSize.Store(currentBatchSize)
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

// softmax normalizes raw policy logits into a distribution.
func softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	sum := float32(0)
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxV)))
		out[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}

func clampValue(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
