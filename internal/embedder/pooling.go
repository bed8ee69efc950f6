package embedder

import "fmt"

// AveragePool folds buf down to dim values with a fixed stride. The stride
// and window width are both len(buf)/dim, so output i is the mean of
// buf[i*stride : i*stride+stride]. The output length is
// (len(buf)-stride)/stride + 1, which is exactly dim whenever len(buf) is a
// multiple of dim.
func AveragePool(buf []float32, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("pool to %d components: target must be positive", dim)
	}
	if len(buf) < dim {
		return nil, fmt.Errorf("pool %d values to %d components: buffer too short", len(buf), dim)
	}

	stride := len(buf) / dim
	n := (len(buf)-stride)/stride + 1
	out := make([]float32, n)
	for i := range out {
		start := i * stride
		var sum float64
		for _, v := range buf[start : start+stride] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(stride))
	}
	return out, nil
}
