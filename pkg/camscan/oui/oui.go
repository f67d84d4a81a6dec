// Package oui resolves MAC addresses to the manufacturer registered for their
// IEEE OUI prefix, so a discovered device can be labelled with its vendor
// (for example "Hangzhou Hikvision Digital Technology") even when none of its
// open ports names one.
//
// The database is the IEEE oui.txt file, loaded lazily from the path given
// to SetDatabase.
package oui

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/oui"
)

// ErrNoDatabase is returned by Lookup before SetDatabase has been called.
var ErrNoDatabase = errors.New("no OUI database configured")

var (
	ouiDB     oui.OuiDB
	ouiDBOnce sync.Once
	ouiDBErr  error
	ouiDBMu   sync.RWMutex

	dbPath string
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from OUI operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// VendorInfo contains information about a MAC address vendor.
type VendorInfo struct {
	Manufacturer string
	Address      []string
	Country      string
	Prefix       string
}

// SetDatabase sets the path of the OUI database file.
// The file is opened on the next lookup. An empty path removes the database.
func SetDatabase(path string) error {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("OUI database: %w", err)
		}
	}

	ouiDBMu.Lock()
	defer ouiDBMu.Unlock()
	dbPath = path
	ouiDBOnce = sync.Once{}
	ouiDB = nil
	ouiDBErr = nil

	debugLog("OUI database path set: %s", path)
	return nil
}

// DatabasePath returns the configured database path, empty if none.
func DatabasePath() string {
	ouiDBMu.RLock()
	defer ouiDBMu.RUnlock()
	return dbPath
}

func initDB() (oui.OuiDB, error) {
	ouiDBMu.Lock()
	defer ouiDBMu.Unlock()

	if dbPath == "" {
		return nil, ErrNoDatabase
	}
	ouiDBOnce.Do(func() {
		debugLog("Loading OUI database from: %s", dbPath)
		db, err := oui.OpenStaticFile(dbPath)
		if err != nil {
			ouiDBErr = fmt.Errorf("open OUI database: %w", err)
			return
		}
		ouiDB = db
	})
	return ouiDB, ouiDBErr
}

// Lookup returns the vendor registered for mac, or nil if the prefix is unknown.
// The MAC address can be in various formats: "00:11:22:33:44:55", "00-11-22-33-44-55", "001122334455"
func Lookup(mac string) (*VendorInfo, error) {
	normalized := NormalizeMAC(mac)
	if normalized == "" {
		return nil, fmt.Errorf("invalid MAC address %q", mac)
	}
	hwAddr, err := net.ParseMAC(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MAC address: %w", err)
	}

	db, err := initDB()
	if err != nil {
		return nil, err
	}

	entry, err := db.Query(hwAddr.String())
	if err != nil {
		if errors.Is(err, oui.ErrNotFound) {
			debugLog("%s: vendor not found in database", normalized)
			return nil, nil
		}
		return nil, fmt.Errorf("OUI lookup failed: %w", err)
	}

	vendor := &VendorInfo{
		Manufacturer: entry.Manufacturer,
		Address:      entry.Address,
		Country:      entry.Country,
		Prefix:       entry.Prefix.String(),
	}
	debugLog("%s -> %s", normalized, vendor.Manufacturer)
	return vendor, nil
}

// LookupName returns just the manufacturer name, or "" if unknown or on error.
func LookupName(mac string) string {
	vendor, err := Lookup(mac)
	if err != nil || vendor == nil {
		return ""
	}
	return vendor.Manufacturer
}

// NormalizeMAC normalizes various MAC address formats to standard format.
// Returns empty string if invalid.
func NormalizeMAC(mac string) string {
	mac = strings.ToLower(mac)
	mac = strings.ReplaceAll(mac, "-", "")
	mac = strings.ReplaceAll(mac, ":", "")
	mac = strings.ReplaceAll(mac, ".", "")

	if len(mac) != 12 {
		return ""
	}
	for _, c := range mac {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return ""
		}
	}

	return fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		mac[0:2], mac[2:4], mac[4:6], mac[6:8], mac[8:10], mac[10:12])
}
