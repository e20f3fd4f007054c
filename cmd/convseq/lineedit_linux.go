//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var promptHistory []string

func stdinIsTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}

// readInteractiveLine reads one line with basic editing and history. When
// stdin is not a terminal it falls back to a plain buffered read.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		r := bufio.NewReader(os.Stdin)
		s, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF && s == "" {
			return "", io.EOF
		}
		return trimTrailingNewline(s), nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &newState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	fmt.Print(prompt)
	line := make([]byte, 0, 256)
	cursor := 0
	escState := 0
	var escBuf strings.Builder
	var buf [16]byte
	histPos := len(promptHistory)
	histDraft := ""
	histBrowsing := false

	redraw := func() {
		fmt.Printf("\r%s%s", prompt, string(line))
		fmt.Print("\x1b[K")
		if cursor < len(line) {
			fmt.Printf("\r%s%s", prompt, string(line[:cursor]))
		}
	}
	handleCSI := func(seq string) {
		switch seq {
		case "A": // up
			if len(promptHistory) == 0 {
				return
			}
			if !histBrowsing {
				histDraft = string(line)
				histBrowsing = true
				histPos = len(promptHistory)
			}
			if histPos > 0 {
				histPos--
				line = append(line[:0], promptHistory[histPos]...)
				cursor = len(line)
				redraw()
			}
		case "B": // down
			if !histBrowsing {
				return
			}
			if histPos < len(promptHistory)-1 {
				histPos++
				line = append(line[:0], promptHistory[histPos]...)
			} else {
				histPos = len(promptHistory)
				line = append(line[:0], histDraft...)
				histBrowsing = false
			}
			cursor = len(line)
			redraw()
		case "D":
			if cursor > 0 {
				cursor--
				redraw()
			}
		case "C":
			if cursor < len(line) {
				cursor++
				redraw()
			}
		case "H":
			cursor = 0
			redraw()
		case "F":
			cursor = len(line)
			redraw()
		case "3~":
			if cursor < len(line) {
				line = append(line[:cursor], line[cursor+1:]...)
				redraw()
			}
		}
	}

	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for i := 0; i < n; i++ {
			b := buf[i]
			if escState != 0 {
				switch escState {
				case 1:
					if b == '[' {
						escState = 2
						escBuf.Reset()
					} else {
						escState = 0
					}
				case 2:
					escBuf.WriteByte(b)
					if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
						handleCSI(escBuf.String())
						escState = 0
					}
				}
				continue
			}

			switch b {
			case 27: // ESC
				escState = 1
			case '\r', '\n':
				fmt.Print("\r\n")
				out := string(line)
				if strings.TrimSpace(out) != "" {
					promptHistory = append(promptHistory, out)
				}
				return out, nil
			case 3: // Ctrl+C
				fmt.Print("^C\r\n")
				return "", io.EOF
			case 4: // Ctrl+D
				if len(line) == 0 {
					fmt.Print("\r\n")
					return "", io.EOF
				}
			case 127, 8: // backspace
				if cursor > 0 {
					line = append(line[:cursor-1], line[cursor:]...)
					cursor--
					redraw()
				}
			case 1: // Ctrl+A
				cursor = 0
				redraw()
			case 5: // Ctrl+E
				cursor = len(line)
				redraw()
			case 21: // Ctrl+U
				line = line[:0]
				cursor = 0
				redraw()
			default:
				if b >= 32 {
					if cursor == len(line) {
						line = append(line, b)
					} else {
						line = append(line, 0)
						copy(line[cursor+1:], line[cursor:])
						line[cursor] = b
					}
					cursor++
					redraw()
				}
			}
		}
	}
}
