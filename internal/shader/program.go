// Package shader contains the processing stages of the frame pipeline and
// the listener contracts that connect them.
//
// A Program consumes input textures and produces output textures. Its input
// listener is told when it can accept a frame and when an input frame has
// been consumed; its output listener is told when an output frame is
// available and when the current stream ended. All methods are called on
// the processing executor.
package shader

import (
	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
)

// InputListener receives events about a program's input side.
type InputListener interface {
	// OnReadyToAcceptInputFrame is called once per free input slot.
	OnReadyToAcceptInputFrame()
	// OnInputFrameProcessed is called when input may be reused by its owner.
	OnInputFrameProcessed(input glutil.TextureInfo)
	// OnFlush is called when the program dropped all pending frames.
	OnFlush()
}

// OutputListener receives events about a program's output side.
type OutputListener interface {
	// OnOutputFrameAvailable hands output to the listener until it is
	// returned through ReleaseOutputFrame.
	OnOutputFrameAvailable(output glutil.TextureInfo, presentationTimeUs int64)
	// OnCurrentOutputStreamEnded is called after the last frame of the stream.
	OnCurrentOutputStreamEnded()
}

// ErrorListener receives asynchronous processing errors.
type ErrorListener func(err error)

// Program is one processing stage.
type Program interface {
	SetInputListener(listener InputListener)
	SetOutputListener(listener OutputListener)
	SetErrorListener(runner executor.Runner, listener ErrorListener)

	// QueueInputFrame processes input. It must only be called after the
	// input listener was told the program is ready to accept a frame.
	QueueInputFrame(input glutil.TextureInfo, presentationTimeUs int64)
	ReleaseOutputFrame(output glutil.TextureInfo)
	SignalEndOfCurrentInputStream()
	Flush()
	Release() error
}

// Submitter queues work on the processing executor.
type Submitter interface {
	Submit(task executor.Task)
}

type nopInputListener struct{}

func (nopInputListener) OnReadyToAcceptInputFrame()                {}
func (nopInputListener) OnInputFrameProcessed(_ glutil.TextureInfo) {}
func (nopInputListener) OnFlush()                                  {}

type nopOutputListener struct{}

func (nopOutputListener) OnOutputFrameAvailable(_ glutil.TextureInfo, _ int64) {}
func (nopOutputListener) OnCurrentOutputStreamEnded()                          {}

// errorReporter forwards errors to a listener on its runner.
type errorReporter struct {
	runner   executor.Runner
	listener ErrorListener
}

func (r *errorReporter) set(runner executor.Runner, listener ErrorListener) {
	if runner == nil {
		runner = executor.Inline
	}
	r.runner = runner
	r.listener = listener
}

func (r *errorReporter) report(err error) {
	if r.listener == nil {
		return
	}
	listener := r.listener
	r.runner.Run(func() { listener(err) })
}
