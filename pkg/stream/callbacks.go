package stream

// Reasoning is the reasoning side-channel reported on completion.
type Reasoning struct {
	Content string
	Summary []string
}

// Callbacks is the set of hooks a presentation layer supplies to a session.
// Every field is optional. All hooks run on the goroutine that called
// Client.Stream, in the order the deltas were decoded.
//
// Exactly one of OnComplete or OnError is invoked per session. No hook is
// invoked after OnComplete or OnError.
type Callbacks struct {
	// OnStart fires once a successful response starts arriving.
	OnStart func()

	// OnReasoningStart fires before the first reasoning token. It fires at
	// most once per session.
	OnReasoningStart func()

	// OnReasoningToken fires for every non-empty reasoning token.
	OnReasoningToken func(text string)

	// OnReasoningComplete fires once when reasoning closes, strictly before
	// the first OnToken. summary is nil when no summary items arrived.
	OnReasoningComplete func(full string, summary []string)

	// OnToken fires for every non-empty content token.
	OnToken func(text string)

	// OnComplete fires on the terminator or at the natural end of the body.
	// reasoning is nil when no reasoning text arrived.
	OnComplete func(full string, reasoning *Reasoning)

	// OnError fires on transport failure and on cancellation. Use
	// errors.Is(err, ErrCancelled) to tell them apart.
	OnError func(err error)
}

func (c Callbacks) start() {
	if c.OnStart != nil {
		c.OnStart()
	}
}

func (c Callbacks) reasoningStart() {
	if c.OnReasoningStart != nil {
		c.OnReasoningStart()
	}
}

func (c Callbacks) reasoningToken(text string) {
	if c.OnReasoningToken != nil {
		c.OnReasoningToken(text)
	}
}

func (c Callbacks) reasoningComplete(full string, summary []string) {
	if c.OnReasoningComplete != nil {
		c.OnReasoningComplete(full, summary)
	}
}

func (c Callbacks) token(text string) {
	if c.OnToken != nil {
		c.OnToken(text)
	}
}

func (c Callbacks) complete(full string, reasoning *Reasoning) {
	if c.OnComplete != nil {
		c.OnComplete(full, reasoning)
	}
}

func (c Callbacks) failed(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
