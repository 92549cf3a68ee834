package radio

import (
	"context"
	"io"
)

type IQReader struct {
	r   io.Reader
	err error
}

// NewIQReader takes a reader that uses u8 I/Q samples.
func NewIQReader(r io.Reader) *IQReader {
	if r == nil {
		panic("nil reader")
	}
	return &IQReader{r: r}
}

// Err is the error that ended the last stream. Only valid once the stream's
// channel is closed.
func (iq *IQReader) Err() error { return iq.err }

func (iq *IQReader) Batch64(batch, limit int) <-chan []complex64 {
	return iq.BatchStream64(context.Background(), batch, limit)
}

// BatchStream64 streams batches of batch samples. A short final batch is
// delivered before the stream closes on a read error.
func (iq *IQReader) BatchStream64(ctx context.Context, batch, limit int) <-chan []complex64 {
	ch := make(chan []complex64, 1)
	go func() {
		defer close(ch)
		iq.err = nil
		iq8buf := make([]byte, batch*2)
		for i := 0; limit <= 0 || i < limit; i++ {
			sumBytes := 0
			for sumBytes != len(iq8buf) && iq.err == nil {
				readBytes := 0
				readBytes, iq.err = iq.r.Read(iq8buf[sumBytes:])
				sumBytes += readBytes
			}
			if samps := decodeU8(iq8buf[:sumBytes-sumBytes%2]); len(samps) > 0 {
				select {
				case ch <- samps:
				case <-ctx.Done():
					return
				}
			}
			if iq.err != nil || ctx.Err() != nil {
				return
			}
		}
	}()
	return ch
}

func decodeU8(iq8buf []byte) []complex64 {
	samps := make([]complex64, len(iq8buf)/2)
	for i := 0; i < len(samps); i++ {
		samps[i] = complex(
			(float32(iq8buf[2*i])-127)/128.0,
			(float32(iq8buf[2*i+1])-127)/128.0)
	}
	return samps
}

type IQWriter struct{ w io.Writer }

func NewIQWriter(w io.Writer) *IQWriter { return &IQWriter{w} }

func (iq *IQWriter) Write64(out []complex64) error {
	buf := make([]byte, 2*len(out))
	for i := range out {
		buf[2*i] = quantize(real(out[i]))
		buf[2*i+1] = quantize(imag(out[i]))
	}
	_, err := iq.w.Write(buf)
	return err
}

func quantize(v float32) byte {
	q := v*128.0 + 127.0
	if q < 0 {
		return 0
	} else if q > 255 {
		return 255
	}
	return byte(q + 0.5)
}
