package ocr

import "context"

// Engine opens recognition sessions. One session is opened per extraction
// call and closed before the call returns.
type Engine interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a configured recognition worker. Sessions are not shared
// between goroutines.
type Session interface {
	Configure(opts Options) error
	Recognize(ctx context.Context, img []byte) (Recognition, error)
	Close() error
}

// Prober is implemented by engines that can tell up front whether they are
// able to run at all.
type Prober interface {
	Probe() error
}

// withSession opens a session, runs fn and closes the session exactly once,
// also when fn panics.
func withSession(ctx context.Context, engine Engine, fn func(Session) error) (err error) {
	s, err := engine.Open(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrUnsupportedEnvironment
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
