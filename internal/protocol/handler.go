package protocol

// Session is the minimal view of an emitter or listener session a message
// handler is given: enough to log against, nothing that lets a handler
// reach into transport internals.
type Session interface {
	// ID returns the session's identifier, used only for log correlation.
	ID() string
}

// ReplyFunc is how a two-way handler hands its result back to the
// listener. Exactly one of err or response should be meaningful: a
// *UserError is encoded as its value in the message's error union, any
// other non-nil err as a system error (the union's string branch) carrying
// err.Error(); otherwise response is encoded using the message's response
// type.
type ReplyFunc func(err error, response any)

// TwoWayHandler handles a message that expects a response.
type TwoWayHandler func(request any, session Session, reply ReplyFunc)

// OneWayHandler handles a message declared one-way; it has no way to
// reply because the caller isn't waiting for one.
type OneWayHandler func(request any, session Session)

// Handler is the registered behavior for one message name: a discriminated
// union of the two shapes above, matching the message's OneWay flag.
type Handler struct {
	TwoWay TwoWayHandler
	OneWay OneWayHandler
}

// TwoWay builds a Handler for a message that returns a response.
func TwoWay(fn TwoWayHandler) Handler { return Handler{TwoWay: fn} }

// OneWayOnly builds a Handler for a one-way message.
func OneWayOnly(fn OneWayHandler) Handler { return Handler{OneWay: fn} }
