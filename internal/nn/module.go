// Package nn implements the neural network modules of the captioning
// pipeline.
//
// Building blocks:
//   - Parameter: trainable tensors with gradient tracking
//   - Linear: fully connected layer
//   - Embedding: token lookup table
//   - LayerNorm: normalization over the feature dimension
//   - Dropout: inverted dropout with train/eval modes
//   - LSTMCell: single-step recurrent cell used by the caption decoder
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import "github.com/captiva-ml/captiva/internal/tensor"

// Module is the base interface for network components. Forward signatures
// vary per module (the attention modules return distributions and a KL
// term alongside the output), so the shared contract is parameter access.
type Module[B tensor.Backend] interface {
	// Parameters returns all trainable parameters of this module,
	// including nested module parameters. Modules without trainable
	// state return an empty slice.
	Parameters() []*Parameter[B]
}
