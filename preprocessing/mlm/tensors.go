package mlm

import (
	"github.com/gomlx/gomlx/types/tensors"
)

// Names of the tensors returned by Batch.Tensors.
const (
	TokenIDsKey      = "token_ids"
	SegmentIDsKey    = "segment_ids"
	MaskPositionsKey = "mask_positions"
	LabelsKey        = "labels"
	SampleWeightsKey = "sample_weights"
)

// Tensors converts the batch to GoMLX tensors, ready to be fed to a training loop.
// Ids are converted to int32 and weights are float32. All tensors are shaped [batchSize, width], where
// width may be 0 (e.g. with a mask selection length of 0).
func (b *Batch) Tensors() map[string]*tensors.Tensor {
	return map[string]*tensors.Tensor{
		TokenIDsKey:      toTensor(b.Features.TokenIDs, func(v int) int32 { return int32(v) }),
		SegmentIDsKey:    toTensor(b.Features.SegmentIDs, func(v int) int32 { return int32(v) }),
		MaskPositionsKey: toTensor(b.Features.MaskPositions, func(v int) int32 { return int32(v) }),
		LabelsKey:        toTensor(b.Labels, func(v int) int32 { return int32(v) }),
		SampleWeightsKey: toTensor(b.SampleWeights, func(v float32) float32 { return v }),
	}
}

// toTensor flattens rows (all of the same length) into a [len(rows), width] tensor.
// It builds the tensor from flat data, since tensors.FromValue rejects empty inner slices.
func toTensor[In any, Out int32 | float32](rows [][]In, convert func(In) Out) *tensors.Tensor {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	flat := make([]Out, 0, len(rows)*width)
	for _, row := range rows {
		for _, v := range row {
			flat = append(flat, convert(v))
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, len(rows), width)
}
