package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
)

// promptSecret reads a line without echo when stdin is a terminal.
func promptSecret(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptFolder lists the root folder and folders and reads a choice by number.
// 0 selects the root folder. Invalid input is asked again until in is exhausted.
func promptFolder(in io.Reader, out io.Writer, folders []models.FolderEntry) (models.FolderEntry, error) {
	fmt.Fprintf(out, "  0. %s\n", constants.RootFolderName)
	for i, f := range folders {
		fmt.Fprintf(out, "%3d. %s\n", i+1, f.Name)
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Choose [0-%d]: ", len(folders))
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			n, convErr := strconv.Atoi(input)
			switch {
			case convErr != nil || n < 0 || n > len(folders):
				fmt.Fprintln(out, "Invalid choice, please try again.")
			case n == 0:
				return models.FolderEntry{ID: constants.RootFolderID, Name: constants.RootFolderName}, nil
			default:
				return folders[n-1], nil
			}
		}
		if err != nil {
			return models.FolderEntry{}, fmt.Errorf("no folder selected: %w", err)
		}
	}
}
