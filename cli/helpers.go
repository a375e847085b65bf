package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/fahmaliyi/securevault/store"
	"github.com/fahmaliyi/securevault/vault"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

// ReadPassword prompts on stderr and reads from stdin.
func ReadPassword(prompt string) ([]byte, error) {
	return ReadPasswordMasked(os.Stdin, os.Stderr, prompt)
}

// ReadNewPassword asks twice and fails when the two answers differ.
func ReadNewPassword(prompt string) ([]byte, error) {
	pw, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	again, err := ReadPassword("Repeat: ")
	if err != nil {
		vault.Zero(pw)
		return nil, err
	}
	defer vault.Zero(again)
	if string(pw) != string(again) {
		vault.Zero(pw)
		return nil, ErrPasswordMismatch
	}
	return pw, nil
}

// ReadPasswordMasked echoes '*' per rune. It falls back to a plain line
// read when in is not a terminal.
func ReadPasswordMasked(in *os.File, out io.Writer, prompt string) ([]byte, error) {
	fmt.Fprint(out, prompt)
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := readLine(in)
		return []byte(line), err
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	defer term.Restore(fd, state)

	var input []byte
	var buf [1]byte
	for {
		n, err := in.Read(buf[:])
		if err != nil || n == 0 {
			fmt.Fprint(out, "\r\n")
			return input, err
		}
		switch c := buf[0]; c {
		case 13, 10:
			fmt.Fprint(out, "\r\n")
			return input, nil
		case 3: // ctrl+c
			fmt.Fprint(out, "\r\n")
			vault.Zero(input)
			return nil, errors.New("interrupted")
		case 127, 8:
			if len(input) > 0 {
				_, size := utf8.DecodeLastRune(input)
				vault.Zero(input[len(input)-size:])
				input = input[:len(input)-size]
				fmt.Fprint(out, "\b \b")
			}
		default:
			input = append(input, c)
			if utf8.RuneStart(c) {
				fmt.Fprint(out, "*")
			}
		}
	}
}

func readLine(in io.Reader) (string, error) {
	var line []byte
	var b [1]byte
	for {
		n, err := in.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				break
			}
			line = append(line, b[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				break
			}
			return string(line), err
		}
	}
	if l := len(line); l > 0 && line[l-1] == '\r' {
		line = line[:l-1]
	}
	return string(line), nil
}

// Describe turns an error from the vault into a message for the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, vault.ErrInvalidCredentials), errors.Is(err, vault.ErrDecryptionFailed):
		return "Wrong password, or the vault file is damaged."
	case errors.Is(err, vault.ErrInvalidFormat):
		return "That file is not a vault."
	case errors.Is(err, vault.ErrNoVault):
		return "No vault found. Run 'init' to create one."
	case errors.Is(err, vault.ErrVaultExists):
		return "A vault already exists here."
	case errors.Is(err, vault.ErrLocked):
		return "The vault is locked."
	case errors.Is(err, vault.ErrAlreadyUnlocked):
		return "The vault is already unlocked."
	case errors.Is(err, vault.ErrItemNotFound):
		return "No such item."
	case errors.Is(err, vault.ErrNoFilePicker):
		return "Export and import are not available."
	case errors.Is(err, store.ErrFileLocked):
		return "Another program is writing the vault file. Try again."
	case errors.Is(err, vault.ErrStorage):
		return "Could not write the vault: " + err.Error()
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match."
	}
	return err.Error()
}
