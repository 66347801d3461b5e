package detector

import (
	"context"
	"fmt"
	"io"
	"os"

	digest "github.com/opencontainers/go-digest"

	"github.com/jgtierney/dl-organize-sub001/internal/sampler"
	"github.com/jgtierney/dl-organize-sub001/internal/types"
)

const blockSize = 64 * 1024

// hashPlan consumes exactly the byte ranges plan describes — the whole
// stream for a Full plan, or [0, HeadLen) and [Size-TailLen, Size) for a
// Sampled one, writing both ranges into the same digester so the result is
// one fingerprint over the concatenated bytes, never two.
func hashPlan(ctx context.Context, path string, plan sampler.Plan, algorithm digest.Algorithm) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	digester := algorithm.Digester()

	if plan.Kind == types.KindFull {
		if err := copyWithContext(ctx, digester.Hash(), f, plan.Size); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		return digester.Digest(), nil
	}

	if err := copyRangeWithContext(ctx, digester.Hash(), f, 0, plan.HeadLen); err != nil {
		return "", fmt.Errorf("hash %s head: %w", path, err)
	}
	if err := copyRangeWithContext(ctx, digester.Hash(), f, plan.Size-plan.TailLen, plan.TailLen); err != nil {
		return "", fmt.Errorf("hash %s tail: %w", path, err)
	}
	return digester.Digest(), nil
}

func copyRangeWithContext(ctx context.Context, w io.Writer, f *os.File, offset, n int64) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return copyWithContext(ctx, w, f, n)
}

func copyWithContext(ctx context.Context, w io.Writer, r io.Reader, n int64) error {
	buf := make([]byte, blockSize)
	remaining := n
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		chunk := int64(blockSize)
		if remaining < chunk {
			chunk = remaining
		}
		read, err := io.CopyBuffer(w, io.LimitReader(r, chunk), buf)
		remaining -= read
		if err != nil {
			return err
		}
		if read == 0 {
			break
		}
	}
	return nil
}
