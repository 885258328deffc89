// Package clientcfg persists the client's last-connect state: server
// address, passphrase, and channel id, as a single whitespace-separated
// line overwritten atomically on reconnect (§6).
package clientcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// State is the client's persisted last-connect information.
type State struct {
	Addr       string
	Passphrase string
	ChannelID  uint32
}

const fileName = "last_connect"

// Path returns the absolute path to the persisted state file, under
// os.UserConfigDir()/voudp.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("clientcfg: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "voudp", fileName), nil
}

// Load reads the persisted state. A missing or malformed file returns a
// zero State and no error; this is not a fatal condition for a client that
// has never connected before.
func Load() State {
	path, err := Path()
	if err != nil {
		return State{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return State{}
	}
	id, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return State{}
	}
	return State{Addr: fields[0], Passphrase: fields[1], ChannelID: uint32(id)}
}

// Save atomically overwrites the persisted state: write to a temp file in
// the same directory, then rename over the destination.
func Save(s State) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("clientcfg: create config dir: %w", err)
	}
	line := fmt.Sprintf("%s %s %d\n", s.Addr, s.Passphrase, s.ChannelID)

	tmp, err := os.CreateTemp(filepath.Dir(path), fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("clientcfg: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(line); err != nil {
		tmp.Close()
		return fmt.Errorf("clientcfg: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("clientcfg: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("clientcfg: rename into place: %w", err)
	}
	return nil
}
