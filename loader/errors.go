package loader

// Kind classifies loader errors.
type Kind int

const (
	// KindIO is a file or stream that could not be opened.
	KindIO Kind = iota
	// KindFormat is a malformed bundle, image or payload.
	KindFormat
	// KindConfig is a missing configuration value.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IOError"
	case KindFormat:
		return "FormatError"
	case KindConfig:
		return "ConfigError"
	}
	return "Error"
}

// Error is a loader failure. Msg is the text shown to the player.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
