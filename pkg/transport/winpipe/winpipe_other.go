//go:build !windows

// Package winpipe is a Windows named pipe transport.
package winpipe

import (
    "errors"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

// ErrUnsupported is returned on platforms without named pipes.
var ErrUnsupported = errors.New("winpipe: named pipes are only available on windows")

func New(transport.Options) (transport.Transport, error) { return nil, ErrUnsupported }
