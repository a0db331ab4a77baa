package preprocess

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"ModelHub/internal/domain/models"

	"golang.org/x/image/draw"
)

const kindImage = "image"

// ImageConfig controls resizing and per-channel normalisation.
type ImageConfig struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Normalize bool       `json:"normalize"`
	Mean      [3]float64 `json:"mean"`
	Std       [3]float64 `json:"std"`
	// FitStats replaces Mean and Std with statistics of the fitted images.
	FitStats bool `json:"fit_stats"`
}

// DefaultImageConfig uses 224x224 and ImageNet channel statistics.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Width:     224,
		Height:    224,
		Normalize: true,
		Mean:      [3]float64{0.485, 0.456, 0.406},
		Std:       [3]float64{0.229, 0.224, 0.225},
	}
}

// Tensor is an HxWxC float32 image in row-major channel-last order.
type Tensor struct {
	Height   int       `json:"height"`
	Width    int       `json:"width"`
	Channels int       `json:"channels"`
	Data     []float32 `json:"data"`
}

// At returns the value at row y, column x, channel c.
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// ImagePreprocessor converts images to RGB, resizes them and normalises channels.
type ImagePreprocessor struct {
	lifecycle
	cfg ImageConfig
}

func NewImagePreprocessor(cfg ImageConfig) (*ImagePreprocessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: target size %dx%d", models.ErrInvalidParameter, cfg.Width, cfg.Height)
	}
	if cfg.Normalize && !cfg.FitStats {
		for c, s := range cfg.Std {
			if s <= 0 {
				return nil, fmt.Errorf("%w: std[%d] must be > 0", models.ErrInvalidParameter, c)
			}
		}
	}
	return &ImagePreprocessor{cfg: cfg}, nil
}

// Config returns the active configuration, including fitted statistics.
func (p *ImagePreprocessor) Config() ImageConfig { return p.cfg }

func (p *ImagePreprocessor) Fit(data []image.Image) error {
	if p.cfg.FitStats {
		if len(data) == 0 {
			return fmt.Errorf("%w: no images to fit channel statistics", models.ErrEmptyInput)
		}
		var sum, sumSq [3]float64
		var n float64
		for _, img := range data {
			px := p.resize(img)
			for i := 0; i < len(px.Pix); i += 4 {
				for c := 0; c < 3; c++ {
					v := float64(px.Pix[i+c]) / 255
					sum[c] += v
					sumSq[c] += v * v
				}
				n++
			}
		}
		for c := 0; c < 3; c++ {
			mean := sum[c] / n
			variance := sumSq[c]/n - mean*mean
			std := 1.0
			if variance > 1e-12 {
				std = math.Sqrt(variance)
			}
			p.cfg.Mean[c] = mean
			p.cfg.Std[c] = std
		}
	}
	p.fitted = true
	return nil
}

func (p *ImagePreprocessor) Transform(data []image.Image) []Tensor {
	p.mustBeFitted(kindImage)
	out := make([]Tensor, len(data))
	for i, img := range data {
		out[i] = p.toTensor(p.resize(img))
	}
	return out
}

// resize draws img onto an NRGBA canvas of the target size; grayscale and alpha inputs
// come out as three colour channels.
func (p *ImagePreprocessor) resize(img image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (p *ImagePreprocessor) toTensor(px *image.NRGBA) Tensor {
	t := Tensor{Height: p.cfg.Height, Width: p.cfg.Width, Channels: 3, Data: make([]float32, p.cfg.Height*p.cfg.Width*3)}
	j := 0
	for i := 0; i < len(px.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(px.Pix[i+c]) / 255
			if p.cfg.Normalize {
				v = (v - p.cfg.Mean[c]) / p.cfg.Std[c]
			}
			t.Data[j] = float32(v)
			j++
		}
	}
	return t
}

func (p *ImagePreprocessor) Snapshot() (Snapshot, error) {
	raw, err := json.Marshal(p.cfg)
	if err != nil {
		return Snapshot{}, fmt.Errorf("image snapshot: %w", err)
	}
	return Snapshot{Version: SnapshotVersion, Kind: kindImage, Fitted: p.fitted, Params: raw}, nil
}

// RestoreImage rebuilds an ImagePreprocessor from a snapshot.
func RestoreImage(s Snapshot) (*ImagePreprocessor, error) {
	if err := s.expect(kindImage); err != nil {
		return nil, err
	}
	var cfg ImageConfig
	if err := json.Unmarshal(s.Params, &cfg); err != nil {
		return nil, fmt.Errorf("%w: image params: %v", models.ErrInvalidParameter, err)
	}
	// fitted statistics are already baked into Mean and Std
	if s.Fitted {
		cfg.FitStats = false
	}
	p, err := NewImagePreprocessor(cfg)
	if err != nil {
		return nil, err
	}
	p.fitted = s.Fitted
	return p, nil
}

var _ Pipeline[[]image.Image, []Tensor] = (*ImagePreprocessor)(nil)
