package node

// Hooks receives node lifecycle events. Implementations run on the tick
// goroutine and must not block for long.
type Hooks interface {
	// OnMessage receives messages on topics other than the command topic.
	OnMessage(topic string, payload []byte)
	OnConnect()
	OnErase()
	OnUpdateBegin()
	OnUpdateProgress(current, total int64)
	OnUpdateComplete()
	OnUpdateFailed(code int, message string)
}

// NopHooks implements Hooks with no-ops. Embed it to override a subset.
type NopHooks struct{}

func (NopHooks) OnMessage(string, []byte)      {}
func (NopHooks) OnConnect()                    {}
func (NopHooks) OnErase()                      {}
func (NopHooks) OnUpdateBegin()                {}
func (NopHooks) OnUpdateProgress(int64, int64) {}
func (NopHooks) OnUpdateComplete()             {}
func (NopHooks) OnUpdateFailed(int, string)    {}

// HookFuncs is a dispatch table of optional callbacks. Nil entries are skipped.
type HookFuncs struct {
	Message        func(topic string, payload []byte)
	Connect        func()
	Erase          func()
	UpdateBegin    func()
	UpdateProgress func(current, total int64)
	UpdateComplete func()
	UpdateFailed   func(code int, message string)
}

// OnMessage implements Hooks.
func (h HookFuncs) OnMessage(topic string, payload []byte) {
	if h.Message != nil {
		h.Message(topic, payload)
	}
}

// OnConnect implements Hooks.
func (h HookFuncs) OnConnect() {
	if h.Connect != nil {
		h.Connect()
	}
}

// OnErase implements Hooks.
func (h HookFuncs) OnErase() {
	if h.Erase != nil {
		h.Erase()
	}
}

// OnUpdateBegin implements Hooks.
func (h HookFuncs) OnUpdateBegin() {
	if h.UpdateBegin != nil {
		h.UpdateBegin()
	}
}

// OnUpdateProgress implements Hooks.
func (h HookFuncs) OnUpdateProgress(current, total int64) {
	if h.UpdateProgress != nil {
		h.UpdateProgress(current, total)
	}
}

// OnUpdateComplete implements Hooks.
func (h HookFuncs) OnUpdateComplete() {
	if h.UpdateComplete != nil {
		h.UpdateComplete()
	}
}

// OnUpdateFailed implements Hooks.
func (h HookFuncs) OnUpdateFailed(code int, message string) {
	if h.UpdateFailed != nil {
		h.UpdateFailed(code, message)
	}
}
