package eventthread

import (
	"sync"

	"github.com/tliron/commonlog"

	engine "github.com/icyseptember2237/rgss-engine"
)

var log = commonlog.GetLogger("rgss.eventthread")

// Message is one message box shown to the player.
type Message struct {
	Text     string
	Severity engine.Severity
}

// MessageBox logs messages and keeps them until they are taken. It is safe
// for use from the script goroutine while the event loop drains it.
type MessageBox struct {
	mu      sync.Mutex
	pending []Message
}

func (b *MessageBox) ShowMessageBox(text string, severity engine.Severity) {
	if severity == engine.SeverityError {
		log.Error(text)
	} else {
		log.Notice(text)
	}
	b.mu.Lock()
	b.pending = append(b.pending, Message{Text: text, Severity: severity})
	b.mu.Unlock()
}

// Take returns and clears the pending messages.
func (b *MessageBox) Take() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.pending
	b.pending = nil
	return msgs
}
