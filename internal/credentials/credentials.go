// Package credentials loads the archive username and password.
//
// Credentials live in a two-line secrets file (username, then password). When
// the file is missing, unreadable or incomplete the user is prompted once and
// the answers are persisted back with owner-only permissions. The current
// value is held in a Store that can be swapped atomically when the file
// changes on disk.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	filePerm  = 0o600
	lineCount = 2
)

var (
	// ErrIncomplete is returned when a username or password is missing.
	ErrIncomplete = errors.New("credentials incomplete")

	// ErrPromptDisabled is returned when the file is unusable and prompting is off.
	ErrPromptDisabled = errors.New("credentials file unusable and prompting is disabled")
)

// Credentials is an immutable username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Complete reports whether both parts are present.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// String never reveals the password.
func (c Credentials) String() string {
	if c.Username == "" {
		return "Credentials{}"
	}

	return "Credentials{" + c.Username + ":***}"
}

// ReadFile reads a two-line credentials file. Line endings (\n or \r\n) are stripped;
// other whitespace is part of the value.
func ReadFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	lines := strings.SplitN(string(data), "\n", lineCount+1)
	if len(lines) < lineCount {
		return Credentials{}, fmt.Errorf("%w: expected %d lines in %s", ErrIncomplete, lineCount, path)
	}

	creds := Credentials{
		Username: strings.TrimRight(lines[0], "\r"),
		Password: strings.TrimRight(lines[1], "\r"),
	}

	if !creds.Complete() {
		return Credentials{}, fmt.Errorf("%w: empty username or password in %s", ErrIncomplete, path)
	}

	return creds, nil
}

// WriteFile persists credentials with mode 0600. The file is written to a
// temporary sibling and renamed into place.
func WriteFile(path string, creds Credentials) error {
	if !creds.Complete() {
		return ErrIncomplete
	}

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary credentials file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to restrict credentials file permissions: %w", err)
	}

	if _, err := fmt.Fprintf(tmp, "%s\n%s\n", creds.Username, creds.Password); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move credentials file into place: %w", err)
	}

	return nil
}

// Prompt asks for a username and password on out and reads the answers from in.
func Prompt(in io.Reader, out io.Writer) (Credentials, error) {
	reader := bufio.NewReader(in)

	username, err := ask(reader, out, "Enter SDSS-V username: ")
	if err != nil {
		return Credentials{}, err
	}

	password, err := ask(reader, out, "Enter SDSS-V password: ")
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{Username: username, Password: password}
	if !creds.Complete() {
		return Credentials{}, ErrIncomplete
	}

	return creds, nil
}

func ask(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	answer, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	return strings.TrimRight(answer, "\r\n"), nil
}
