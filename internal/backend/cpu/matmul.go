package cpu

import (
	"fmt"

	"github.com/captiva-ml/captiva/internal/parallel"
	"github.com/captiva-ml/captiva/internal/tensor"
)

// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
func (b *Backend) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	as, cs := a.Shape(), c.Shape()
	if len(as) != 2 || len(cs) != 2 {
		panic(fmt.Sprintf("MatMul: expected 2D tensors, got %v and %v", as, cs))
	}
	if as[1] != cs[0] {
		panic(fmt.Sprintf("MatMul: inner dimensions mismatch: %v @ %v", as, cs))
	}
	m, k, n := as[0], as[1], cs[1]
	out := tensor.Empty(tensor.Shape{m, n})
	matmulInto(a.Data(), c.Data(), out.Data(), m, k, n)
	return out
}

// BatchMatMul performs batched matrix multiplication for 3D/4D tensors.
func (b *Backend) BatchMatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	as, cs := a.Shape(), c.Shape()
	if len(as) != len(cs) || (len(as) != 3 && len(as) != 4) {
		panic(fmt.Sprintf("BatchMatMul: expected matching 3D or 4D tensors, got %v and %v", as, cs))
	}
	nd := len(as)
	batch := 1
	for d := 0; d < nd-2; d++ {
		if as[d] != cs[d] {
			panic(fmt.Sprintf("BatchMatMul: batch dimensions mismatch: %v vs %v", as, cs))
		}
		batch *= as[d]
	}
	m, k, n := as[nd-2], as[nd-1], cs[nd-1]
	if cs[nd-2] != k {
		panic(fmt.Sprintf("BatchMatMul: inner dimensions mismatch: %v @ %v", as, cs))
	}

	outShape := as.Clone()
	outShape[nd-1] = n
	out := tensor.Empty(outShape)

	ad, cd, od := a.Data(), c.Data(), out.Data()
	parallel.For(batch, func(i int) {
		matmulInto(ad[i*m*k:(i+1)*m*k], cd[i*k*n:(i+1)*k*n], od[i*m*n:(i+1)*m*n], m, k, n)
	})
	return out
}

// matmulInto computes out = a @ b for row-major a [m,k], b [k,n].
// The k-inner loop order keeps b accesses sequential.
func matmulInto(a, b, out []float32, m, k, n int) {
	for i := 0; i < m; i++ {
		row := out[i*n : (i+1)*n]
		for x := range row {
			row[x] = 0
		}
		for p := 0; p < k; p++ {
			av := a[i*k+p]
			if av == 0 {
				continue
			}
			bRow := b[p*n : (p+1)*n]
			for j, bv := range bRow {
				row[j] += av * bv
			}
		}
	}
}
