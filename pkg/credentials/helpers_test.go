package credentials

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// slowProvider takes long enough to Retrieve that concurrent callers overlap
// with the refresh in progress.
type slowProvider struct {
	creds Credentials
	calls atomic.Int32
}

func (p *slowProvider) Retrieve(_ context.Context) (Credentials, error) {
	p.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return p.creds, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
