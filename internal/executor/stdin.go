package executor

import (
	"io"
)

// stdinRelay owns the only reader of a stdin source. Runs attach to it in
// turn with forward; input that arrives between runs is held for the next
// one. A terminal never reaches EOF, so a per-run io.Copy would leave one
// blocked reader behind after every run.
type stdinRelay struct {
	src    io.Reader
	chunks chan []byte
}

func newStdinRelay(src io.Reader) *stdinRelay {
	r := &stdinRelay{
		src:    src,
		chunks: make(chan []byte),
	}
	go r.read()
	return r
}

func (r *stdinRelay) read() {
	defer close(r.chunks)

	buf := make([]byte, 32*1024)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// forward writes input to w until the source ends (eof is true) or done
// is closed.
func (r *stdinRelay) forward(done <-chan struct{}, w io.Writer) (eof bool, err error) {
	for {
		select {
		case <-done:
			return false, nil
		case chunk, ok := <-r.chunks:
			if !ok {
				return true, nil
			}
			if _, err := w.Write(chunk); err != nil {
				return false, err
			}
		}
	}
}
