package shader

import (
	"sync"

	"github.com/smazurov/videofx/internal/glutil"
)

// pendingFrame is a producer output waiting for consumer capacity. An
// endOfStream entry marks the end of the producer's current stream.
type pendingFrame struct {
	texture            glutil.TextureInfo
	presentationTimeUs int64
	endOfStream        bool
}

// ChainingListener connects a producing program's output to a consuming
// program's input. It is the producer's OutputListener and the consumer's
// InputListener. Calls into either program are submitted to the executor so
// that no program is re-entered from its own callbacks.
type ChainingListener struct {
	producer  Program
	consumer  Program
	submitter Submitter

	mu       sync.Mutex
	capacity int
	pending  []pendingFrame
}

// NewChainingListener creates a listener forwarding frames from producer to consumer.
func NewChainingListener(producer, consumer Program, submitter Submitter) *ChainingListener {
	return &ChainingListener{
		producer:  producer,
		consumer:  consumer,
		submitter: submitter,
	}
}

// OnReadyToAcceptInputFrame implements InputListener.
func (l *ChainingListener) OnReadyToAcceptInputFrame() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		l.capacity++
		return
	}

	frame := l.pending[0]
	l.pending = l.pending[1:]
	l.submitter.Submit(func() error {
		l.consumer.QueueInputFrame(frame.texture, frame.presentationTimeUs)
		return nil
	})

	if len(l.pending) > 0 && l.pending[0].endOfStream {
		l.pending = l.pending[1:]
		l.submitter.Submit(func() error {
			l.consumer.SignalEndOfCurrentInputStream()
			return nil
		})
	}
}

// OnInputFrameProcessed implements InputListener.
func (l *ChainingListener) OnInputFrameProcessed(input glutil.TextureInfo) {
	l.submitter.Submit(func() error {
		l.producer.ReleaseOutputFrame(input)
		return nil
	})
}

// OnFlush implements InputListener.
func (l *ChainingListener) OnFlush() {
	l.mu.Lock()
	l.capacity = 0
	l.pending = nil
	l.mu.Unlock()

	l.submitter.Submit(func() error {
		l.producer.Flush()
		return nil
	})
}

// OnOutputFrameAvailable implements OutputListener.
func (l *ChainingListener) OnOutputFrameAvailable(output glutil.TextureInfo, presentationTimeUs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity > 0 {
		l.capacity--
		l.submitter.Submit(func() error {
			l.consumer.QueueInputFrame(output, presentationTimeUs)
			return nil
		})
		return
	}
	l.pending = append(l.pending, pendingFrame{texture: output, presentationTimeUs: presentationTimeUs})
}

// OnCurrentOutputStreamEnded implements OutputListener.
func (l *ChainingListener) OnCurrentOutputStreamEnded() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) > 0 {
		l.pending = append(l.pending, pendingFrame{endOfStream: true})
		return
	}
	l.submitter.Submit(func() error {
		l.consumer.SignalEndOfCurrentInputStream()
		return nil
	})
}

// PendingFrames returns the number of outputs waiting for consumer capacity.
func (l *ChainingListener) PendingFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, f := range l.pending {
		if !f.endOfStream {
			n++
		}
	}
	return n
}

// ReleasePending drops every buffered output, returning each to the
// producer. It returns the number of frames dropped.
func (l *ChainingListener) ReleasePending() int {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	dropped := 0
	for _, f := range pending {
		if f.endOfStream {
			continue
		}
		dropped++
		texture := f.texture
		l.submitter.Submit(func() error {
			l.producer.ReleaseOutputFrame(texture)
			return nil
		})
	}
	return dropped
}
