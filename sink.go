package mjpeg

// Sink receives the events of one camera view. Calls are made from the goroutine reading the camera's
// stream, one at a time and in order. A handle passed to OnFrame stays valid until the next OnFrame, OnError or
// OnAuthRequired call; sinks that keep the payload longer must copy it.
//
// A View waits for its current connection to stop before SwitchCamera, SetCredentials, Retrigger
// or Teardown return, and the connection only stops once the callback in progress has returned.
// Sinks must therefore not call those methods from a callback; hand the change to another goroutine.
type Sink interface {
	OnFrame(handle *DisplayHandle)
	OnAuthRequired()
	OnError(message string)
}

type FrameCallback func(handle *DisplayHandle)
type AuthRequiredCallback func()
type ErrorCallback func(message string)
type StateCallback func(state ConnectionState, message string)
