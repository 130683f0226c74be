package model

import (
	"github.com/captiva-ml/captiva/internal/nn"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// CaptionModel pairs an encoder with a decoder for end-to-end training
// and caption generation.
type CaptionModel[B tensor.Backend] struct {
	Encoder *Encoder[B]
	Decoder *Decoder[B]
}

// NewCaptionModel builds both halves from their configs. The decoder's
// EncoderDim must match the encoder's output dimension.
func NewCaptionModel[B tensor.Backend](enc EncoderConfig, dec DecoderConfig, backend B) (*CaptionModel[B], error) {
	encoder, err := NewEncoder(enc, backend)
	if err != nil {
		return nil, err
	}
	if dec.EncoderDim != encoder.EncoderDim() {
		return nil, nn.NewConfigError("CaptionModel", "decoder expects %d-dim annotations but encoder produces %d",
			dec.EncoderDim, encoder.EncoderDim())
	}
	decoder, err := NewDecoder(dec, backend)
	if err != nil {
		return nil, err
	}
	return &CaptionModel[B]{Encoder: encoder, Decoder: decoder}, nil
}

// Train puts the decoder in training mode. The encoder has no mode.
func (m *CaptionModel[B]) Train() { m.Decoder.Train() }

// Eval makes the whole model deterministic.
func (m *CaptionModel[B]) Eval() { m.Decoder.Eval() }

// Forward encodes images and decodes maxLen steps against captions.
func (m *CaptionModel[B]) Forward(images *tensor.Tensor[B], captions [][]int, maxLen int) (*DecoderOutput[B], error) {
	features, err := m.Encoder.Forward(images)
	if err != nil {
		return nil, err
	}
	return m.Decoder.Forward(features, captions, maxLen)
}

// Generate produces greedy captions for a batch of images.
func (m *CaptionModel[B]) Generate(images *tensor.Tensor[B], endToken, maxLen int) ([][]int, error) {
	features, err := m.Encoder.Forward(images)
	if err != nil {
		return nil, err
	}
	return m.Decoder.Generate(features, endToken, maxLen)
}

// Parameters returns the trainable parameters of both halves; a frozen
// encoder contributes none.
func (m *CaptionModel[B]) Parameters() []*nn.Parameter[B] {
	params := append([]*nn.Parameter[B]{}, m.Encoder.Parameters()...)
	return append(params, m.Decoder.Parameters()...)
}

// StateDict returns both halves' parameters under encoder./decoder.
// prefixes.
func (m *CaptionModel[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for k, v := range m.Encoder.StateDict() {
		sd["encoder."+k] = v
	}
	for k, v := range m.Decoder.StateDict() {
		sd["decoder."+k] = v
	}
	return sd
}

// LoadStateDict restores both halves from a combined state dictionary.
func (m *CaptionModel[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	encSD := make(map[string]*tensor.RawTensor)
	decSD := make(map[string]*tensor.RawTensor)
	for k, v := range sd {
		switch {
		case len(k) > 8 && k[:8] == "encoder.":
			encSD[k[8:]] = v
		case len(k) > 8 && k[:8] == "decoder.":
			decSD[k[8:]] = v
		}
	}
	if err := m.Encoder.LoadStateDict(encSD); err != nil {
		return err
	}
	return m.Decoder.LoadStateDict(decSD)
}
