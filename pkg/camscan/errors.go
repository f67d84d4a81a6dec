package camscan

import (
	"errors"

	"github.com/marcuoli/go-camscan/pkg/camscan/network"
)

var (
	// ErrAlreadyScanning is returned when a scan is started while one is running.
	ErrAlreadyScanning = errors.New("scan already in progress")

	// ErrInvalidRange matches any range descriptor that cannot be expanded.
	// The concrete error is a *network.RangeError.
	ErrInvalidRange = network.ErrInvalidRange
)
