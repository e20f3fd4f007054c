//go:build !linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

func readInteractiveLine(prompt string) (string, error) {
	fmt.Print(prompt)
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
