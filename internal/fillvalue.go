// Internal API, not to be exported
package internal

import (
	"io"
)

// FillValueReader reads a fill pattern repeated forever.
type FillValueReader struct {
	repeat      []byte
	repeatIndex int
}

// NewFillValueReader returns a reader of the repeated pattern, positioned as
// if offset bytes had already been read.  An empty pattern reads as zeros.
func NewFillValueReader(repeat []byte, offset int64) io.Reader {
	ri := 0
	if len(repeat) > 0 {
		ri = int(offset % int64(len(repeat)))
	}
	return &FillValueReader{repeat, ri}
}

func (fvr *FillValueReader) Read(p []byte) (int, error) {
	rl := len(fvr.repeat)
	if rl == 0 {
		clear(p)
		return len(p), nil
	}
	ri := fvr.repeatIndex
	z := p
	for ri != 0 && len(z) > 0 {
		z[0] = fvr.repeat[ri]
		z = z[1:]
		ri = (ri + 1) % rl
	}
	if ri == 0 {
		for len(z) >= rl {
			copy(z, fvr.repeat)
			z = z[rl:]
		}
	}
	for i := 0; i < len(z); i++ {
		z[i] = fvr.repeat[ri%rl]
		ri++
	}
	fvr.repeatIndex = ri % rl
	return len(p), nil
}
